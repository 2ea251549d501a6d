package botflags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonOptionsValidateRequiresDataDir(t *testing.T) {
	var o CommonOptions
	assert.Error(t, o.Validate("rcsync"))
}

func TestCommonOptionsValidateFillsDefaults(t *testing.T) {
	o := CommonOptions{DataDir: "/data"}
	require.NoError(t, o.Validate("rcsync"))
	assert.Equal(t, filepath.Join("/data", "rcsync.state.json"), o.StateFile)
	assert.Equal(t, filepath.Join("/data", "changelog.sqlite"), o.RCDatabaseFile)
}

func TestCommonOptionsValidateKeepsExplicitPaths(t *testing.T) {
	o := CommonOptions{DataDir: "/data", StateFile: "/custom/state.json", RCDatabaseFile: "/custom/rc.sqlite"}
	require.NoError(t, o.Validate("rcsync"))
	assert.Equal(t, "/custom/state.json", o.StateFile)
	assert.Equal(t, "/custom/rc.sqlite", o.RCDatabaseFile)
}

func TestWikiOptionsValidateRequiresAPIURL(t *testing.T) {
	o := WikiOptions{UserName: "Bot", PasswordPath: "irrelevant"}
	assert.Error(t, o.Validate("rcsync"))
}

func TestWikiOptionsValidateRequiresUserName(t *testing.T) {
	o := WikiOptions{APIURL: "https://example.org/w/api.php", PasswordPath: "irrelevant"}
	assert.Error(t, o.Validate("rcsync"))
}

func TestWikiOptionsValidateRequiresPasswordPath(t *testing.T) {
	o := WikiOptions{APIURL: "https://example.org/w/api.php", UserName: "Bot"}
	assert.Error(t, o.Validate("rcsync"))
}

func TestWikiOptionsValidateLoadsAndTrimsPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))

	o := WikiOptions{APIURL: "https://example.org/w/api.php", UserName: "Bot", PasswordPath: path}
	require.NoError(t, o.Validate("rcsync"))
	assert.Equal(t, "s3cret", o.Password())
}

func TestWikiOptionsValidateMissingPasswordFile(t *testing.T) {
	o := WikiOptions{
		APIURL:       "https://example.org/w/api.php",
		UserName:     "Bot",
		PasswordPath: filepath.Join(t.TempDir(), "missing"),
	}
	assert.Error(t, o.Validate("rcsync"))
}
