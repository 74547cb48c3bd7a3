// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFormat(t *testing.T) {
	testCases := map[string]string{
		"token.yaml":    "yaml",
		"token.YML":     "yaml",
		"token.json":    "json",
		"prod.env":      "dotenv",
		"token":         "binary",
		"token.enc.bin": "binary",
	}
	for name, expected := range testCases {
		assert.Equal(t, expected, Format(name), name)
	}
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted([]byte("plain-token"), "binary"))
	assert.False(t, IsEncrypted([]byte(`{"data":"x"}`), "binary"))
	assert.True(t, IsEncrypted([]byte(`{"data":"ENC[...]","sops":{}}`), "binary"))
	assert.False(t, IsEncrypted([]byte("discordToken: abc\n"), "yaml"))
	assert.True(t, IsEncrypted([]byte("discordToken: ENC[x]\nsops:\n  version: 3.11.0\n"), "yaml"))
	assert.True(t, IsEncrypted([]byte("DISCORD_TOKEN=ENC[x]\nsops_version=3.11.0\n"), "dotenv"))
}

func TestTokenPlain(t *testing.T) {
	token, err := Token(writeFile(t, "token", "abc.def.ghi\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	token, err = Token(writeFile(t, "token.yaml", "discordToken: from-yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", token)

	token, err = Token(writeFile(t, "token.json", `{"discordToken": "from-json"}`))
	require.NoError(t, err)
	assert.Equal(t, "from-json", token)

	token, err = Token(writeFile(t, "bot.env", "OTHER=1\nDISCORD_TOKEN=\"from-env\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
}

func TestTokenMissingKey(t *testing.T) {
	_, err := Token(writeFile(t, "token.yaml", "other: value\n"))
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = Token(writeFile(t, "bot.env", "OTHER=1\n"))
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = Token(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadFileEncryptedWithoutKeys(t *testing.T) {
	// Metadata without any usable key group cannot be decrypted
	path := writeFile(
		t,
		"token.json",
		`{"discordToken":"ENC[AES256_GCM,data:AAAA,iv:AAAA,tag:AAAA,type:str]","sops":{"lastmodified":"2026-01-01T00:00:00Z","mac":"ENC[AES256_GCM,data:AAAA,iv:AAAA,tag:AAAA,type:str]","version":"3.11.0"}}`,
	)
	_, err := ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypting")
}

func TestEncrypt(t *testing.T) {
	t.Setenv("WARDEN_AGE_RECIPIENTS", "")
	t.Setenv("WARDEN_GCP_KMS_RESOURCE_ID", "")
	t.Setenv("WARDEN_AWS_KMS_KEY_ARNS", "")
	_, err := Encrypt([]byte("token"))
	require.ErrorIs(t, err, ErrNoMasterKeys)

	_, err = Encrypt([]byte(`{"data":"ENC[x]","sops":{}}`))
	require.ErrorIs(t, err, ErrAlreadyEncrypted)

	t.Setenv("WARDEN_AGE_RECIPIENTS", "not-a-recipient")
	_, err = Encrypt([]byte("token"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMasterKeys)
}
