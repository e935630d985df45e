package polyline

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/desertthunder/heatx/internal/models"
	gopolyline "github.com/twpayne/go-polyline"
)

var googleExample = models.Track{
	models.NewGeoPoint(38.5, -120.2),
	models.NewGeoPoint(40.7, -120.95),
	models.NewGeoPoint(43.252, -126.453),
}

func randomTrack(r *rand.Rand, n int) models.Track {
	track := make(models.Track, n)
	for i := range track {
		track[i] = models.NewGeoPoint(r.Float64()*180-90, r.Float64()*360-180)
	}
	return track
}

func TestEncode(t *testing.T) {
	tc := []struct {
		name   string
		points models.Track
		want   string
	}{
		{name: "empty track", points: models.Track{}, want: ""},
		{name: "nil track", points: nil, want: ""},
		{name: "single point", points: models.Track{models.NewGeoPoint(38.5, -120.2)}, want: "_p~iF~ps|U"},
		{name: "three points", points: googleExample, want: "_p~iF~ps|U_ulLnnqC_mqNvxq`@"},
		{name: "origin", points: models.Track{models.NewGeoPoint(0, 0)}, want: "??"},
		{name: "repeated point", points: models.Track{models.NewGeoPoint(0, 0), models.NewGeoPoint(0, 0)}, want: "????"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.points)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeIgnoresElevation(t *testing.T) {
	withEle := models.Track{models.NewGeoPoint(38.5, -120.2).WithElevation(1500)}
	got, err := Encode(withEle)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got != "_p~iF~ps|U" {
		t.Errorf("Encode() = %q, want %q", got, "_p~iF~ps|U")
	}
}

func TestEncodeInvalidCoordinate(t *testing.T) {
	tc := []struct {
		name      string
		points    models.Track
		wantIndex int
	}{
		{name: "latitude above range", points: models.Track{models.NewGeoPoint(95, 0)}, wantIndex: 0},
		{name: "latitude below range", points: models.Track{models.NewGeoPoint(-90.1, 0)}, wantIndex: 0},
		{name: "longitude out of range", points: models.Track{models.NewGeoPoint(0, 0), models.NewGeoPoint(0, 181)}, wantIndex: 1},
		{name: "NaN", points: models.Track{models.NewGeoPoint(1, 1), models.NewGeoPoint(2, 2), models.NewGeoPoint(math.NaN(), 0)}, wantIndex: 2},
		{name: "infinity", points: models.Track{models.NewGeoPoint(0, math.Inf(1))}, wantIndex: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.points)
			if err == nil {
				t.Fatalf("Encode() = %q, want error", got)
			}
			if got != "" {
				t.Errorf("Encode() returned partial output %q", got)
			}
			if !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("Encode() error = %v, want ErrInvalidCoordinate", err)
			}

			var coordErr *InvalidCoordinateError
			if !errors.As(err, &coordErr) {
				t.Fatalf("Encode() error type = %T, want *InvalidCoordinateError", err)
			}
			if coordErr.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", coordErr.Index, tt.wantIndex)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("single point", func(t *testing.T) {
		got, err := Decode("_p~iF~ps|U")
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		want := models.Track{models.NewGeoPoint(38.5, -120.2)}
		if !got.Equal(want) {
			t.Errorf("Decode() = %v, want %v", got, want)
		}
	})

	t.Run("three points", func(t *testing.T) {
		got, err := Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !got.Equal(googleExample) {
			t.Errorf("Decode() = %v, want %v", got, googleExample)
		}
	})

	t.Run("empty string", func(t *testing.T) {
		got, err := Decode("")
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Decode() = %v, want empty track", got)
		}
	})

	t.Run("negative coordinates", func(t *testing.T) {
		want := models.Track{
			models.NewGeoPoint(-33.86882, 151.20929),
			models.NewGeoPoint(-34.92866, 138.59863),
			models.NewGeoPoint(-0.00001, -0.00001),
		}
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !got.Equal(want) {
			t.Errorf("Decode() = %v, want %v", got, want)
		}
	})
}

func TestDecodeMalformed(t *testing.T) {
	tc := []struct {
		name       string
		input      string
		wantOffset int
	}{
		{name: "continuation bit on last byte", input: "_p~iF~ps|", wantOffset: 9},
		{name: "latitude without longitude", input: "_p~iF", wantOffset: 5},
		{name: "byte below range", input: "_p~iF ps|U", wantOffset: 5},
		{name: "byte above range", input: "_p~iF~ps|U\x7f", wantOffset: 10},
		{name: "non ascii", input: "_p~iF~ps|Ué", wantOffset: 10},
		{name: "overlong value", input: "______________?", wantOffset: 12},
		{name: "last group overflows", input: "~~~~~~~~~~~~^?", wantOffset: 12},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if err == nil {
				t.Fatalf("Decode() = %v, want error", got)
			}
			if got != nil {
				t.Errorf("Decode() returned partial result %v", got)
			}
			if !errors.Is(err, ErrMalformedPolyline) {
				t.Errorf("Decode() error = %v, want ErrMalformedPolyline", err)
			}

			var malformed *MalformedPolylineError
			if !errors.As(err, &malformed) {
				t.Fatalf("Decode() error type = %T, want *MalformedPolylineError", err)
			}
			if malformed.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", malformed.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDecodeWidestValue(t *testing.T) {
	// twelve full groups plus a 4-bit top group is the widest int64 delta
	got, err := Decode("~~~~~~~~~~~~N?")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 || got[0].Longitude != 0 {
		t.Fatalf("Decode() = %v", got)
	}
	if want := float64(math.MinInt64) / 1e5; got[0].Latitude != want {
		t.Errorf("Latitude = %v, want %v", got[0].Latitude, want)
	}
}

func TestPoints(t *testing.T) {
	const encoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	seq := Default().Points(encoded)

	collect := func() models.Track {
		var out models.Track
		for p, err := range seq {
			if err != nil {
				t.Fatalf("Points() error = %v", err)
			}
			out = append(out, p)
		}
		return out
	}

	t.Run("restartable", func(t *testing.T) {
		first := collect()
		second := collect()
		if !first.Equal(second) {
			t.Errorf("second pass = %v, want %v", second, first)
		}
		if !first.Equal(googleExample) {
			t.Errorf("Points() = %v, want %v", first, googleExample)
		}
	})

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for range seq {
			n++
			if n == 2 {
				break
			}
		}
		if n != 2 {
			t.Errorf("iterations = %d, want 2", n)
		}
	})

	t.Run("yields valid points before error", func(t *testing.T) {
		var points int
		var gotErr error
		for _, err := range Default().Points("_p~iF~ps|U_ulL") {
			if err != nil {
				gotErr = err
				break
			}
			points++
		}
		if points != 1 {
			t.Errorf("points before error = %d, want 1", points)
		}
		if !errors.Is(gotErr, ErrMalformedPolyline) {
			t.Errorf("error = %v, want ErrMalformedPolyline", gotErr)
		}
	})
}

func TestCount(t *testing.T) {
	n, err := Default().Count("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	if _, err := Default().Count("_p~iF"); !errors.Is(err, ErrMalformedPolyline) {
		t.Errorf("Count() error = %v, want ErrMalformedPolyline", err)
	}
}

func TestNewCodec(t *testing.T) {
	tc := []struct {
		name      string
		precision int
		wantErr   bool
	}{
		{name: "zero", precision: 0},
		{name: "default", precision: 5},
		{name: "six", precision: 6},
		{name: "max", precision: MaxPrecision},
		{name: "negative", precision: -1, wantErr: true},
		{name: "too large", precision: MaxPrecision + 1, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodec(tt.precision)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrecision) {
					t.Errorf("NewCodec() error = %v, want ErrInvalidPrecision", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCodec() error = %v", err)
			}
			if c.Precision() != tt.precision {
				t.Errorf("Precision() = %d, want %d", c.Precision(), tt.precision)
			}
		})
	}
}

func TestPrecisionSix(t *testing.T) {
	c, err := NewCodec(6)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	track := models.Track{models.NewGeoPoint(38.5, -120.2)}
	encoded, err := c.Encode(track)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if encoded == "_p~iF~ps|U" {
		t.Errorf("precision 6 produced the precision 5 encoding")
	}

	got, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.Equal(track) {
		t.Errorf("Decode() = %v, want %v", got, track)
	}

	// the same string read at the wrong precision lands ten times further out
	wrong, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if math.Abs(wrong[0].Latitude-385) > 1e-9 {
		t.Errorf("Decode() at precision 5 = %v, want latitude 385", wrong[0])
	}
}

func TestRoundTripErrorBound(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for precision := 0; precision <= MaxPrecision; precision++ {
		c, err := NewCodec(precision)
		if err != nil {
			t.Fatalf("NewCodec(%d) error = %v", precision, err)
		}
		bound := 0.5*math.Pow10(-precision)*(1+1e-9) + 1e-12

		track := randomTrack(r, 200)
		encoded, err := c.Encode(track)
		if err != nil {
			t.Fatalf("precision %d: Encode() error = %v", precision, err)
		}
		got, err := c.Decode(encoded)
		if err != nil {
			t.Fatalf("precision %d: Decode() error = %v", precision, err)
		}
		if len(got) != len(track) {
			t.Fatalf("precision %d: decoded %d points, want %d", precision, len(got), len(track))
		}
		for i := range track {
			dLat := math.Abs(got[i].Latitude - track[i].Latitude)
			dLng := math.Abs(got[i].Longitude - track[i].Longitude)
			if dLat > bound || dLng > bound {
				t.Fatalf("precision %d point %d: got %v, want %v within %g", precision, i, got[i], track[i], bound)
			}
		}
	}
}

func TestRoundTripExtremes(t *testing.T) {
	track := models.Track{
		models.NewGeoPoint(90, 180),
		models.NewGeoPoint(-90, -180),
		models.NewGeoPoint(90, -180),
		models.NewGeoPoint(-90, 180),
	}
	c, err := NewCodec(MaxPrecision)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	encoded, err := c.Encode(track)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.Equal(track) {
		t.Errorf("Decode() = %v, want %v", got, track)
	}
}

func TestMatchesReferenceEncoder(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for i := range 20 {
		track := randomTrack(r, 1+r.IntN(100))

		coords := make([][]float64, len(track))
		for j, p := range track {
			coords[j] = []float64{p.Latitude, p.Longitude}
		}
		want := string(gopolyline.EncodeCoords(coords))

		got, err := Encode(track)
		if err != nil {
			t.Fatalf("track %d: Encode() error = %v", i, err)
		}
		if got != want {
			t.Fatalf("track %d: Encode() = %q, reference = %q", i, got, want)
		}

		refDecoded, _, err := gopolyline.DecodeCoords([]byte(got))
		if err != nil {
			t.Fatalf("track %d: reference decode error = %v", i, err)
		}
		decoded, err := Decode(got)
		if err != nil {
			t.Fatalf("track %d: Decode() error = %v", i, err)
		}
		for j := range decoded {
			if math.Abs(decoded[j].Latitude-refDecoded[j][0]) > 1e-9 ||
				math.Abs(decoded[j].Longitude-refDecoded[j][1]) > 1e-9 {
				t.Fatalf("track %d point %d: Decode() = %v, reference = %v", i, j, decoded[j], refDecoded[j])
			}
		}
	}
}

func TestMatchesReferenceCodecAtEveryPrecision(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))

	for precision := 0; precision <= MaxPrecision; precision++ {
		c, err := NewCodec(precision)
		if err != nil {
			t.Fatalf("NewCodec(%d) error = %v", precision, err)
		}
		ref := gopolyline.Codec{Dim: 2, Scale: math.Pow10(precision)}

		for i := range 10 {
			track := randomTrack(r, 1+r.IntN(50))
			coords := make([][]float64, len(track))
			for j, p := range track {
				coords[j] = []float64{p.Latitude, p.Longitude}
			}

			got, err := c.Encode(track)
			if err != nil {
				t.Fatalf("precision %d track %d: Encode() error = %v", precision, i, err)
			}
			if want := string(ref.EncodeCoords(nil, coords)); got != want {
				t.Fatalf("precision %d track %d: Encode() = %q, reference = %q", precision, i, got, want)
			}
		}
	}
}

func TestElevations(t *testing.T) {
	track := models.Track{
		models.NewGeoPoint(1, 2).WithElevation(100),
		models.NewGeoPoint(3, 4),
		models.NewGeoPoint(5, 6).WithElevation(-10.5),
	}

	ele := Elevations(track)
	if len(ele) != 3 || ele[0] != 100 || !math.IsNaN(ele[1]) || ele[2] != -10.5 {
		t.Fatalf("Elevations() = %v", ele)
	}

	encoded, err := Encode(track)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	got, err := WithElevations(decoded, ele)
	if err != nil {
		t.Fatalf("WithElevations() error = %v", err)
	}
	if !got.Equal(track) {
		t.Errorf("WithElevations() = %v, want %v", got, track)
	}

	if _, err := WithElevations(decoded, ele[:2]); !errors.Is(err, ErrElevationMismatch) {
		t.Errorf("WithElevations() error = %v, want ErrElevationMismatch", err)
	}
}
