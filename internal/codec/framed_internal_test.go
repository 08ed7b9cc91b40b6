package codec

import "testing"

func bitrateArg(args []string) string {
	for i, arg := range args {
		if arg == "-b:a" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestFramedEncodeArgsBitrate(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		want    string
	}{
		{name: "configured bitrate is passed through", bitrate: 96000, want: "96000"},
		{name: "zero falls back to the default", bitrate: 0, want: "64000"},
		{name: "negative falls back to the default", bitrate: -1, want: "64000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bitrateArg(framedEncodeArgs(tt.bitrate)); got != tt.want {
				t.Errorf("bitrate arg = %q, want %q", got, tt.want)
			}
		})
	}
}
