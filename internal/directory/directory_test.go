package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDirectory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validDirectory = `[
  {"id": "p1", "name": "Dr. Sarah Chen", "specialty": "Orthopedics", "zip_code": "07728",
   "insurances": ["Blue Cross", "Aetna"], "rating": 4.8, "availability_date": "2026-09-03"},
  {"id": "p2", "name": "Dr. Mark Feld", "specialty": "Sports Medicine", "zip_code": "07730",
   "insurances": ["Cigna"], "rating": 4.5, "availability_date": "2026-09-05"},
  {"id": "p3", "name": "Dr. Ana Reyes", "specialty": "Orthopedics", "zip_code": "11201",
   "insurances": ["Aetna", "Medicare"], "rating": 4.2, "availability_date": "2026-09-01"}
]`

func TestLoadDirectory(t *testing.T) {
	d, err := Load(writeDirectory(t, validDirectory))
	require.NoError(t, err)

	snap := d.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, []string{"Orthopedics", "Sports Medicine"}, snap.Specialties())
	assert.Equal(t, []string{"Aetna", "Blue Cross", "Cigna", "Medicare"}, snap.Insurances())
	assert.Equal(t, "Dr. Sarah Chen", snap.All()[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "directory: open")
}

func TestLoadMalformedJSON(t *testing.T) {
	_, err := Load(writeDirectory(t, `[{"id": "p1",`))
	assert.ErrorContains(t, err, "directory: parse")
}

func TestLoadRejectsInvalidRecord(t *testing.T) {
	bad := `[
  {"id": "p1", "name": "Dr. Chen", "specialty": "Underwater Basket Weaving", "zip_code": "07728",
   "insurances": ["Aetna"], "rating": 4.8, "availability_date": "2026-09-03"}
]`
	_, err := Load(writeDirectory(t, bad))
	assert.ErrorContains(t, err, `invalid provider "p1"`)
}

func TestLoadRejectsBadZip(t *testing.T) {
	bad := `[
  {"id": "p1", "name": "Dr. Chen", "specialty": "Orthopedics", "zip_code": "777",
   "insurances": ["Aetna"], "rating": 4.8, "availability_date": "2026-09-03"}
]`
	_, err := Load(writeDirectory(t, bad))
	assert.ErrorContains(t, err, "zip_code")
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := writeDirectory(t, validDirectory)
	d, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, d.Snapshot().Len())

	smaller := `[
  {"id": "p9", "name": "Dr. New", "specialty": "Cardiology", "zip_code": "07728",
   "insurances": ["Humana"], "rating": 3.9, "availability_date": "2026-10-01"}
]`
	require.NoError(t, os.WriteFile(path, []byte(smaller), 0o644))

	snap, err := d.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, []string{"Cardiology"}, d.Snapshot().Specialties())
}

func TestReloadKeepsOldSnapshotOnFailure(t *testing.T) {
	path := writeDirectory(t, validDirectory)
	d, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err = d.Reload()
	require.Error(t, err)
	assert.Equal(t, 3, d.Snapshot().Len(), "failed reload must keep serving the old snapshot")
}

func TestReloadFailureReleasesDecoder(t *testing.T) {
	path := writeDirectory(t, validDirectory)
	d, err := Load(path)
	require.NoError(t, err)

	// An invalid first record followed by more valid ones than the decode
	// channel buffers: the decoder goroutine must not stay parked on its
	// send after the early validation failure.
	var sb strings.Builder
	sb.WriteString(`[{"id": "bad", "name": "Dr. Bad", "specialty": "Wizardry", "zip_code": "07728",
   "insurances": ["Aetna"], "rating": 4.0, "availability_date": "2026-09-03"}`)
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, `,{"id": "p%d", "name": "Dr. Valid", "specialty": "Orthopedics", "zip_code": "07728",
   "insurances": ["Aetna"], "rating": 4.0, "availability_date": "2026-09-03"}`, i)
	}
	sb.WriteString(`]`)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	before := runtime.NumGoroutine()
	for i := 0; i < 10; i++ {
		_, err := d.Reload()
		require.ErrorContains(t, err, `invalid provider "bad"`)
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, time.Second, 10*time.Millisecond, "failed reloads must not accumulate decoder goroutines")
	assert.Equal(t, 3, d.Snapshot().Len())
}

func TestLoadEmptyDirectory(t *testing.T) {
	d, err := Load(writeDirectory(t, `[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, d.Snapshot().Len())
	assert.Empty(t, d.Snapshot().Specialties())
}
