// Package codec implements the reversible value transforms applied by the
// storage engine before a value is stored.
//
// Two independent transforms exist:
//   - Obfuscation (Encrypt/Decrypt): every byte is XORed with a repeating key and
//     the result is mapped to text using a digit-free base32 alphabet.
//   - Run-length reduction (Compress/Decompress): runs of more than 3 identical
//     bytes are written as <byte><count>.
//
// On the write path obfuscation runs first, on the read path the order is reversed.
// Neither transform is a security or a general purpose compression mechanism, they
// only keep payloads unreadable at a glance and shrink highly repetitive values.
//
// Known limitation: Decompress reads every digit that follows another byte as a
// run length. A plain (not obfuscated) value like "v2" is therefore decoded as "vv"
// when it was stored compressed. Obfuscated payloads are not affected.
package codec
