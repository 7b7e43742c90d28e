package utils

import "testing"

func TestEnvironment(t *testing.T) {
	cases := []struct {
		env       string
		dev, prod bool
		want      string
	}{
		{"", true, false, "development"},
		{"local", true, false, "local"},
		{" Production ", false, true, "production"},
		{"staging", false, false, "staging"},
	}
	for _, tc := range cases {
		t.Setenv("ENVIRONMENT", tc.env)
		if IsDev() != tc.dev || IsProd() != tc.prod || Environment() != tc.want {
			t.Errorf("ENVIRONMENT=%q: got dev=%v prod=%v env=%s", tc.env, IsDev(), IsProd(), Environment())
		}
	}
}
