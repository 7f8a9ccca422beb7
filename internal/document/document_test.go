package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refTypesXML = `<?xml version='1.0' encoding='UTF-8'?>
<eveapi version="2">
  <currentTime>2011-04-01 12:00:00</currentTime>
  <result>
    <rowset name="refTypes" key="refTypeID" columns="refTypeID,refTypeName">
      <row refTypeID="0" refTypeName="Undefined" />
      <row refTypeID="1" refTypeName="Player Trading" />
      <row refTypeID="2" refTypeName="Market Transaction" />
    </rowset>
  </result>
  <cachedUntil>2011-04-02 12:00:00</cachedUntil>
</eveapi>`

const keyInfoXML = `<?xml version='1.0' encoding='UTF-8'?>
<eveapi version="2">
  <currentTime>2011-04-01 12:00:00</currentTime>
  <result>
    <key accessMask="59760264" type="Character" expires="">
      <rowset name="characters" key="characterID" columns="characterID,characterName,corporationID,corporationName">
        <row characterID="898901870" characterName="Desmont McCallock" corporationID="1000009" corporationName="Caldari Provisions">
          <rowset name="nested"><row x="1"/></rowset>
        </row>
        <row characterID="1655827332" characterName="Hadrian" corporationID="1000009" corporationName="Caldari Provisions" />
      </rowset>
    </key>
  </result>
  <cachedUntil>2011-04-01 12:05:00</cachedUntil>
</eveapi>`

const accountStatusXML = `<?xml version='1.0' encoding='UTF-8'?>
<eveapi version="2">
  <currentTime>2011-04-01 12:00:00</currentTime>
  <result>
    <paidUntil>2011-05-01 00:00:00</paidUntil>
    <createDate>2004-01-01 00:00:00</createDate>
    <logonCount>9999</logonCount>
    <logonMinutes>12345</logonMinutes>
    <offers><row x="1"/></offers>
  </result>
  <cachedUntil>3600</cachedUntil>
</eveapi>`

const errorXML = `<?xml version='1.0' encoding='UTF-8'?>
<eveapi version="2">
  <currentTime>2011-04-01 12:00:00</currentTime>
  <error code="203">Authentication failure.</error>
  <cachedUntil>2011-04-02 12:00:00</cachedUntil>
</eveapi>`

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()
	d, err := Parse([]byte(raw))
	require.NoError(t, err)
	return d
}

// =============================================================================
// Parse / Validate
// =============================================================================

func TestParse_Envelope(t *testing.T) {
	d := mustParse(t, refTypesXML)

	assert.Equal(t, time.Date(2011, 4, 1, 12, 0, 0, 0, time.UTC), d.CurrentTime)
	assert.Equal(t, "2011-04-02 12:00:00", d.CachedUntil)
	assert.True(t, d.HasResult)
	assert.False(t, d.HasError)
	assert.Equal(t, []byte(refTypesXML), d.Raw())
}

func TestParse_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"truncated": `<eveapi><result><rowset name="x">`,
		"garbage":   `<<<`,
		"empty":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		shapes  []Shape
		wantErr string
	}{
		{name: "rowset present", raw: refTypesXML, shapes: []Shape{{Kind: Rowset, Name: "refTypes"}}},
		{name: "any rowset", raw: refTypesXML, shapes: []Shape{{Kind: Rowset}}},
		{
			name: "element and nested rowset", raw: keyInfoXML,
			shapes: []Shape{{Kind: Element, Name: "key"}, {Kind: Rowset, Name: "characters"}},
		},
		{name: "fields", raw: accountStatusXML, shapes: []Shape{{Kind: Fields}}},
		{name: "error element", raw: errorXML, shapes: []Shape{{Kind: Rowset}}, wantErr: "api error 203"},
		{
			name: "missing rowset", raw: refTypesXML, shapes: []Shape{{Kind: Rowset, Name: "other"}},
			wantErr: `missing rowset "other"`,
		},
		{
			name: "missing element", raw: refTypesXML, shapes: []Shape{{Kind: Element, Name: "key"}},
			wantErr: "missing element <key>",
		},
		{
			name: "no result", raw: `<eveapi><currentTime>2011-04-01 12:00:00</currentTime></eveapi>`,
			wantErr: "missing result element",
		},
		{
			name: "empty rowset is valid",
			raw:  `<eveapi><result><rowset name="refTypes"></rowset></result></eveapi>`,
			shapes: []Shape{{Kind: Rowset, Name: "refTypes"}},
		},
		{
			name: "fields need a leaf", raw: `<eveapi><result><rowset name="x"/></result></eveapi>`,
			shapes: []Shape{{Kind: Fields}}, wantErr: "missing result fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mustParse(t, tt.raw).Validate(tt.shapes...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ErrorDetails(t *testing.T) {
	err := mustParse(t, errorXML).Validate()

	var inv *InvalidError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 203, inv.Code)
	assert.Equal(t, "Authentication failure.", inv.Message)
}

// =============================================================================
// Rows
// =============================================================================

func TestRows_Rowset(t *testing.T) {
	d := mustParse(t, refTypesXML)

	rows, err := Collect(d.Rows(Shape{Kind: Rowset, Name: "refTypes"}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{"refTypeID": "1", "refTypeName": "Player Trading"}, rows[1])
}

func TestRows_Restartable(t *testing.T) {
	d := mustParse(t, refTypesXML)
	seq := d.Rows(Shape{Kind: Rowset, Name: "refTypes"})

	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRows_EarlyBreak(t *testing.T) {
	d := mustParse(t, refTypesXML)

	n := 0
	for _, err := range d.Rows(Shape{Kind: Rowset, Name: "refTypes"}) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestRows_ElementAndNestedRowset(t *testing.T) {
	d := mustParse(t, keyInfoXML)

	keys, err := Collect(d.Rows(Shape{Kind: Element, Name: "key"}))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, Row{"accessMask": "59760264", "type": "Character", "expires": ""}, keys[0])

	chars, err := Collect(d.Rows(Shape{Kind: Rowset, Name: "characters"}))
	require.NoError(t, err)
	require.Len(t, chars, 2, "nested rowsets inside rows are not flattened")
	assert.Equal(t, "898901870", chars[0]["characterID"])
	assert.Equal(t, "Hadrian", chars[1]["characterName"])
}

func TestRows_Fields(t *testing.T) {
	d := mustParse(t, accountStatusXML)

	rows, err := Collect(d.Rows(Shape{Kind: Fields}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{
		"paidUntil":    "2011-05-01 00:00:00",
		"createDate":   "2004-01-01 00:00:00",
		"logonCount":   "9999",
		"logonMinutes": "12345",
	}, rows[0])
}

func TestRows_MissingShapeYieldsNothing(t *testing.T) {
	d := mustParse(t, refTypesXML)

	rows, err := Collect(d.Rows(Shape{Kind: Rowset, Name: "nope"}))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// CacheInterval
// =============================================================================

func TestCacheInterval(t *testing.T) {
	fallback := 15 * time.Minute

	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{"timestamp hint", refTypesXML, 24 * time.Hour},
		{"seconds hint", accountStatusXML, time.Hour},
		{"error documents keep their hint", errorXML, 24 * time.Hour},
		{"missing hint", `<eveapi><result/></eveapi>`, fallback},
		{
			"no current time",
			`<eveapi><result/><cachedUntil>2011-04-02 12:00:00</cachedUntil></eveapi>`,
			fallback,
		},
		{
			"hint in the past",
			`<eveapi><currentTime>2011-04-02 12:00:00</currentTime><result/><cachedUntil>2011-04-01 12:00:00</cachedUntil></eveapi>`,
			fallback,
		},
		{"garbage hint", `<eveapi><result/><cachedUntil>soon</cachedUntil></eveapi>`, fallback},
		{"zero seconds", `<eveapi><result/><cachedUntil>0</cachedUntil></eveapi>`, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustParse(t, tt.raw).CacheInterval(fallback))
		})
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, `rowset "refTypes"`, Shape{Kind: Rowset, Name: "refTypes"}.String())
	assert.Equal(t, "rowset", Shape{Kind: Rowset}.String())
	assert.Equal(t, "element <key>", Shape{Kind: Element, Name: "key"}.String())
	assert.Equal(t, "result fields", Shape{Kind: Fields}.String())
}
