package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{name: "relative path", path: "config/test.json"},
		{name: "absolute path", path: "/etc/chatx/config.json"},
		{name: "dot in filename", path: "config/test..json"},
		{name: "empty path", path: "", errMsg: "path cannot be empty"},
		{name: "leading traversal", path: "../../../etc/passwd", errMsg: "directory traversal"},
		{name: "embedded traversal", path: "config/../../etc/passwd", errMsg: "directory traversal"},
		{name: "NUL byte", path: "config\x00.json", errMsg: "NUL byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateFilePathStrict(t *testing.T) {
	assert.NoError(t, ValidateFilePathStrict("config.json"))
	assert.NoError(t, ValidateFilePathStrict("./config/app.json"))

	err := ValidateFilePathStrict("/etc/config.json")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "absolute paths not allowed")
	}
	assert.Error(t, ValidateFilePathStrict("../config.json"))
}

func TestValidateDatabasePath(t *testing.T) {
	assert.NoError(t, ValidateDatabasePath(":memory:"))
	assert.NoError(t, ValidateDatabasePath("file::memory:?cache=shared"))
	assert.NoError(t, ValidateDatabasePath("/var/lib/chatx/sessions.db"))
	assert.Error(t, ValidateDatabasePath("data/../../sessions.db"))
	assert.Error(t, ValidateDatabasePath(""))
}
