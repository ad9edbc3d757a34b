package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

func sampleRecord() domain.ExportRecord {
	return domain.ExportRecord{
		FormID:    "f",
		Threshold: 0.5,
		Groups: []domain.ExportGroup{{
			Representative: domain.ExportMember{ProfileID: "a", Username: "alice"},
			Members: []domain.ExportMember{
				{ProfileID: "a", Username: "alice"},
				{ProfileID: "b"},
			},
		}},
		Matrix: []domain.PairScore{{A: "a", B: "b", Score: 0.875}},
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONExporter{}.Export(&buf, sampleRecord()))

	want := `{
  "form_id": "f",
  "threshold": 0.5,
  "groups": [
    {
      "representative": {
        "profile_id": "a",
        "username": "alice"
      },
      "members": [
        {
          "profile_id": "a",
          "username": "alice"
        },
        {
          "profile_id": "b"
        }
      ]
    }
  ],
  "matrix": [
    {
      "a": "a",
      "b": "b",
      "score": 0.875
    }
  ]
}
`
	assert.Equal(t, want, buf.String())
}

func TestYAMLExporter(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, YAMLExporter{}.Export(&first, sampleRecord()))
	require.NoError(t, YAMLExporter{}.Export(&second, sampleRecord()))
	assert.Equal(t, first.String(), second.String(), "output is deterministic")
	assert.Contains(t, first.String(), "form_id: f\n")

	var decoded domain.ExportRecord
	require.NoError(t, yaml.Unmarshal(first.Bytes(), &decoded))
	assert.Equal(t, sampleRecord(), decoded)
}

func TestNew(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		e, err := New(format)
		require.NoError(t, err)
		assert.Equal(t, format, e.Format())
	}

	_, err := New("csv")
	assert.ErrorIs(t, err, ports.ErrUnsupportedFormat)
}
