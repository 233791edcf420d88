package util

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line %q is longer than %d characters", line, Wrap)
		}
	}
	if WrapString("") != "" {
		t.Error("empty text should stay empty")
	}
}

func TestGetClientConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupClientFlags(cmd)
	if err := cmd.ParseFlags([]string{"--endpoints=localhost:1, localhost:2,"}); err != nil {
		t.Fatal(err)
	}
	if err := BindCommandFlags(cmd); err != nil {
		t.Fatal(err)
	}

	conf := GetClientConfig()
	if len(conf.Endpoints) != 2 || conf.Endpoints[1] != "localhost:2" {
		t.Errorf("endpoints = %v", conf.Endpoints)
	}
	if conf.TimeoutSecond != 10 || conf.RetryCount != 3 {
		t.Errorf("defaults = %+v", conf)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("EKV_RETRIES", "7")

	InitConfig()
	cmd := &cobra.Command{Use: "test"}
	SetupClientFlags(cmd)
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	if err := BindCommandFlags(cmd); err != nil {
		t.Fatal(err)
	}

	if got := GetClientConfig().RetryCount; got != 7 {
		t.Errorf("RetryCount = %d, want 7 from EKV_RETRIES", got)
	}
}
