package logging

import "testing"

func TestNew(t *testing.T) {

	t.Setenv("PRESSROOM_LOG_LEVEL", "")

	logger, err := New("warn", "production")
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(-1) { // debug
		t.Fatal("debug should be disabled")
	}

	if _, err := New("loud", "development"); err == nil {
		t.Fatal("expected error for unknown level")
	}

	t.Setenv("PRESSROOM_LOG_LEVEL", "debug")
	logger, err = New("error", "development")
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatal("environment should override the level")
	}
}
