package framefeed

import (
	"testing"
)

func TestCreateFrameSource_TestPattern(t *testing.T) {
	if !IsFrameSourceAvailable(SourceTypeTestPattern) {
		t.Fatal("test pattern source not registered")
	}

	found := false
	for _, st := range AvailableFrameSources() {
		if st == SourceTypeTestPattern {
			found = true
		}
	}
	if !found {
		t.Error("AvailableFrameSources() is missing TestPattern")
	}

	tests := []struct {
		name   string
		config interface{}
		want   SourceConfig
	}{
		{
			name:   "defaults",
			config: nil,
			want:   SourceConfig{Width: 1280, Height: 720, FPS: 30, Format: PixelFormatBGRA32, SourceType: SourceTypeTestPattern},
		},
		{
			name:   "value",
			config: TestPatternConfig{Width: 64, Height: 32, FPS: 10, Format: PixelFormatARGB32, LoggerFactory: quietLoggerFactory()},
			want:   SourceConfig{Width: 64, Height: 32, FPS: 10, Format: PixelFormatARGB32, SourceType: SourceTypeTestPattern},
		},
		{
			name:   "pointer",
			config: &TestPatternConfig{Width: 16, Height: 16, LoggerFactory: quietLoggerFactory()},
			want:   SourceConfig{Width: 16, Height: 16, FPS: 30, Format: PixelFormatBGRA32, SourceType: SourceTypeTestPattern},
		},
		{
			name: "map",
			config: map[string]interface{}{
				"width":   64,
				"height":  "48",
				"fps":     int64(60),
				"format":  "ARGB32",
				"pattern": "Checkerboard",
				"padding": 8,
			},
			want: SourceConfig{Width: 64, Height: 48, FPS: 60, Format: PixelFormatARGB32, SourceType: SourceTypeTestPattern},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := CreateFrameSource(SourceTypeTestPattern, tt.config)
			if err != nil {
				t.Fatalf("CreateFrameSource failed: %v", err)
			}
			defer source.Close()

			if got := source.Config(); got != tt.want {
				t.Errorf("Config() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCreateFrameSource_MapDetails(t *testing.T) {
	source, err := CreateFrameSource(SourceTypeTestPattern, map[string]interface{}{
		"width":        40,
		"height":       4,
		"pattern":      "SolidColor",
		"solid_r":      1,
		"solid_g":      2,
		"solid_b":      3,
		"padding":      4,
		"checker_size": 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	tp := source.(*TestPatternSource)
	if tp.config.Pattern != PatternSolidColor || tp.config.CheckerSize != 2 {
		t.Errorf("decoded config = %+v", tp.config)
	}

	f := tp.NextFrame()
	defer f.Release()
	if f.Buffer.BytesPerRow() != 40*4+4 {
		t.Errorf("BytesPerRow() = %d, want %d", f.Buffer.BytesPerRow(), 40*4+4)
	}
	if pix := f.Buffer.(*HeapPixelBuffer).Pix(); pix[0] != 3 || pix[1] != 2 || pix[2] != 1 {
		t.Errorf("first pixel = %v, want BGRA [3 2 1 255]", pix[:4])
	}
}

func TestCreateFrameSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stype  SourceType
		config interface{}
	}{
		{"unregistered type", SourceTypeCustom, nil},
		{"unknown key", SourceTypeTestPattern, map[string]interface{}{"colour": "red"}},
		{"bad format name", SourceTypeTestPattern, map[string]interface{}{"format": "YUYV"}},
		{"bad pattern name", SourceTypeTestPattern, map[string]interface{}{"pattern": "Plaid"}},
		{"unsupported format", SourceTypeTestPattern, map[string]interface{}{"format": "NV12"}},
		{"wrong config type", SourceTypeTestPattern, CameraConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s, err := CreateFrameSource(tt.stype, tt.config); err == nil {
				s.Close()
				t.Error("CreateFrameSource succeeded")
			}
		})
	}
}

func TestParsePixelFormat(t *testing.T) {
	for _, f := range []PixelFormat{PixelFormatARGB32, PixelFormatBGRA32, PixelFormatI420, PixelFormatNV12, PixelFormatRGB24} {
		got, err := ParsePixelFormat(f.String())
		if err != nil || got != f {
			t.Errorf("ParsePixelFormat(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParsePixelFormat("Unknown"); err == nil {
		t.Error("ParsePixelFormat accepted Unknown")
	}
}

func TestSourceType_Text(t *testing.T) {
	for _, st := range []SourceType{SourceTypeCamera, SourceTypeTestPattern, SourceTypeCustom} {
		text, err := st.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", st, err)
		}
		var got SourceType
		if err := got.UnmarshalText(text); err != nil || got != st {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, got, err)
		}
	}

	if _, err := SourceTypeUnknown.MarshalText(); err == nil {
		t.Error("MarshalText accepted SourceTypeUnknown")
	}
	var st SourceType
	if err := st.UnmarshalText([]byte("Screen")); err == nil {
		t.Error("UnmarshalText accepted an unknown name")
	}
}
