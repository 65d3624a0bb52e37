package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatFromString(t *testing.T) {
	t.Parallel()

	f, err := FloatFromString("1.345")
	require.NoError(t, err)
	assert.Equal(t, 1.345, f)

	_, err = FloatFromString(1.345)
	assert.Error(t, err, "non-string input must error")

	_, err = FloatFromString("1.th")
	assert.Error(t, err)
}

func TestFloatFromScalar(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		raw  interface{}
		want float64
	}{
		{"1.345", 1.345},
		{json.Number("42.5"), 42.5},
		{float64(3.25), 3.25},
		{int64(-9), -9},
		{7, 7},
	} {
		f, err := FloatFromScalar(tc.raw)
		require.NoErrorf(t, err, "raw %v (%T)", tc.raw, tc.raw)
		assert.Equalf(t, tc.want, f, "raw %v (%T)", tc.raw, tc.raw)
	}

	for _, raw := range []interface{}{nil, "", true, "1.th", map[string]interface{}{}} {
		_, err := FloatFromScalar(raw)
		assert.Errorf(t, err, "raw %v (%T) should not coerce", raw, raw)
	}
}

func TestInt64FromString(t *testing.T) {
	t.Parallel()

	n, err := Int64FromString("4300")
	require.NoError(t, err)
	assert.Equal(t, int64(4300), n)

	_, err = Int64FromString(4300)
	assert.Error(t, err, "non-string input must error")

	_, err = Int64FromString("4.3")
	assert.Error(t, err, "fractional strings are not integers")
}

func TestFloatFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{
		"price":  "50000.5",
		"amount": float64(0.25),
		"empty":  "",
		"null":   nil,
		"junk":   "1.th",
	}
	assert.Equal(t, 50000.5, FloatFromMap(m, "price", -1))
	assert.Equal(t, 0.25, FloatFromMap(m, "amount", -1))
	assert.Equal(t, -1.0, FloatFromMap(m, "missing", -1))
	assert.Equal(t, -1.0, FloatFromMap(m, "empty", -1))
	assert.Equal(t, -1.0, FloatFromMap(m, "null", -1))
	assert.Equal(t, -1.0, FloatFromMap(m, "junk", -1))
}

func TestFloatFromMap2(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{
		"last":  "101.5",
		"close": "99.5",
		"null":  nil,
	}
	assert.Equal(t, 101.5, FloatFromMap2(m, "last", "close", -1),
		"the first key wins when both are present")
	assert.Equal(t, 99.5, FloatFromMap2(m, "missing", "close", -1))
	assert.Equal(t, 99.5, FloatFromMap2(m, "null", "close", -1),
		"null counts as absent")
	assert.Equal(t, -1.0, FloatFromMap2(m, "missing", "gone", -1))
}

func TestIntFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{
		"count":   "42",
		"seq":     float64(7),
		"ratio":   "3.9",
		"decimal": float64(3.9),
		"junk":    "x",
	}
	assert.Equal(t, int64(42), IntFromMap(m, "count", -1))
	assert.Equal(t, int64(7), IntFromMap(m, "seq", -1))
	assert.Equal(t, int64(3), IntFromMap(m, "ratio", -1), "fractions truncate")
	assert.Equal(t, int64(3), IntFromMap(m, "decimal", -1))
	assert.Equal(t, int64(-1), IntFromMap(m, "missing", -1))
	assert.Equal(t, int64(-1), IntFromMap(m, "junk", -1))
}

func TestStringFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{
		"side":  "buy",
		"id":    float64(123456),
		"empty": "",
	}
	assert.Equal(t, "buy", StringFromMap(m, "side", "none"))
	assert.Equal(t, "123456", StringFromMap(m, "id", "none"),
		"numeric identifiers coerce to their string form")
	assert.Equal(t, "none", StringFromMap(m, "empty", "none"))
	assert.Equal(t, "none", StringFromMap(m, "missing", "none"))

	assert.Equal(t, "buy", StringFromMap2(m, "side", "id", "none"))
	assert.Equal(t, "123456", StringFromMap2(m, "missing", "id", "none"))
	assert.Equal(t, "none", StringFromMap2(m, "missing", "gone", "none"))
}

func TestCasedFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{"symbol": "btcUsdt"}
	assert.Equal(t, "BTCUSDT", UpperFromMap(m, "symbol", "Def"))
	assert.Equal(t, "btcusdt", LowerFromMap(m, "symbol", "Def"))
	assert.Equal(t, "Def", UpperFromMap(m, "missing", "Def"),
		"the default is returned untouched")
	assert.Equal(t, "Def", LowerFromMap(m, "missing", "Def"))
}

func TestBoolFromMap(t *testing.T) {
	t.Parallel()

	m := map[string]interface{}{
		"active":   true,
		"isSpot":   "true",
		"disabled": "false",
		"junk":     "yes",
	}
	assert.True(t, BoolFromMap(m, "active", false))
	assert.True(t, BoolFromMap(m, "isSpot", false), "string booleans coerce")
	assert.False(t, BoolFromMap(m, "disabled", true))
	assert.True(t, BoolFromMap(m, "missing", true))
	assert.False(t, BoolFromMap(m, "junk", false))
}

func TestTimeFromUnix(t *testing.T) {
	t.Parallel()

	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	assert.Equal(t, want, TimeFromUnixSec(1700000000).UTC())
	assert.Equal(t, want.Add(123*time.Millisecond),
		TimeFromUnixMilli(1700000000123).UTC())
}

func TestTimeFromUnixTimestampFloat(t *testing.T) {
	t.Parallel()

	ts, err := TimeFromUnixTimestampFloat(float64(1700000000123))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())

	_, err = TimeFromUnixTimestampFloat("1700000000123")
	assert.Error(t, err, "non-float input must error")
}

func TestUnixMillis(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1700000000123), UnixMillis(time.UnixMilli(1700000000123)))
}

func TestRecvWindow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(5000), RecvWindow(5*time.Second))
	assert.Equal(t, int64(1500), RecvWindow(1500*time.Millisecond))
	assert.Equal(t, int64(0), RecvWindow(0))
}

func TestISO8601(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2023-11-13T18:26:40.000Z",
		ISO8601(time.Date(2023, 11, 13, 18, 26, 40, 0, time.UTC)))
	assert.Equal(t, "2023-11-13T18:26:40.123Z",
		ISO8601(time.Date(2023, 11, 13, 18, 26, 40, 123000000, time.UTC)))

	cet := time.FixedZone("CET", 2*60*60)
	assert.Equal(t, "2023-11-13T18:26:40.000Z",
		ISO8601(time.Date(2023, 11, 13, 20, 26, 40, 0, cet)),
		"zoned inputs render in UTC")
}

func TestParseDatetime(t *testing.T) {
	t.Parallel()

	base := time.Date(2023, 11, 13, 18, 26, 40, 0, time.UTC)
	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"2023-11-13T18:26:40Z", base},
		{"2023-11-13T18:26:40.123456Z", base.Add(123456 * time.Microsecond)},
		{"2023-11-13T18:26:40+02:00", base.Add(-2 * time.Hour)},
		{"2023-11-13T18:26:40", base},
		{"2023-11-13 18:26:40", base},
		{"2023-11-13 18:26:40.5", base.Add(500 * time.Millisecond)},
		{"2023-11-13", time.Date(2023, 11, 13, 0, 0, 0, 0, time.UTC)},
	} {
		got, err := ParseDatetime(tc.in)
		require.NoErrorf(t, err, "input %q", tc.in)
		assert.Equalf(t, tc.want, got.UTC(), "input %q", tc.in)
	}

	_, err := ParseDatetime("13/11/2023 18:26")
	assert.Error(t, err)
}

func TestBoolPtr(t *testing.T) {
	t.Parallel()

	y := BoolPtr(true)
	require.NotNil(t, y)
	assert.True(t, *y)

	n := BoolPtr(false)
	require.NotNil(t, n)
	assert.False(t, *n)
	assert.NotSame(t, y, n)
}
