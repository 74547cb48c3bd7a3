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


// Package secret loads credentials that may be stored encrypted with sops.
package secret

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/aes"
	"github.com/getsops/sops/v3/age"
	scommon "github.com/getsops/sops/v3/cmd/sops/common"
	"github.com/getsops/sops/v3/config"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/getsops/sops/v3/gcpkms"
	skeys "github.com/getsops/sops/v3/keys"
	awskms "github.com/getsops/sops/v3/kms"
	jsonstore "github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/version"
	"gopkg.in/yaml.v3"
)

// TokenKey is the document key holding the token in yaml and json secret files
const TokenKey = "discordToken"

var (
	ErrAlreadyEncrypted = errors.New("already encrypted")
	ErrNoMasterKeys     = errors.New(
		"sops requires at least one master key to encrypt: set WARDEN_AGE_RECIPIENTS, WARDEN_GCP_KMS_RESOURCE_ID and/or WARDEN_AWS_KMS_KEY_ARNS",
	)
	ErrKeyNotFound = errors.New("key not found in secret file")
)

// Format returns the sops store format for a file name
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".env":
		return "dotenv"
	default:
		return "binary"
	}
}

// IsEncrypted reports whether data carries sops metadata
func IsEncrypted(data []byte, format string) bool {
	switch format {
	case "yaml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return false
		}
		_, ok := doc["sops"]
		return ok
	case "dotenv":
		return bytes.Contains(data, []byte("sops_version="))
	default:
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return false
		}
		_, ok := doc["sops"]
		return ok
	}
}

func Decrypt(data []byte, format string) ([]byte, error) {
	ret, err := decrypt.Data(data, format)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ReadFile returns the contents of path, decrypting it first when it was
// encrypted with sops
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := Format(path)
	if !IsEncrypted(data, format) {
		return data, nil
	}
	ret, err := Decrypt(data, format)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", path, err)
	}
	return ret, nil
}

// Token reads a token from path. Yaml and json files hold it under TokenKey,
// dotenv files under DISCORD_TOKEN, and any other file is the token itself
func Token(path string) (string, error) {
	data, err := ReadFile(path)
	if err != nil {
		return "", err
	}
	switch Format(path) {
	case "yaml", "json":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parsing %s: %w", path, err)
		}
		val, ok := doc[TokenKey].(string)
		if !ok || val == "" {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, TokenKey)
		}
		return strings.TrimSpace(val), nil
	case "dotenv":
		for line := range strings.SplitSeq(string(data), "\n") {
			k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
			if ok && k == "DISCORD_TOKEN" {
				return strings.Trim(strings.TrimSpace(v), `"'`), nil
			}
		}
		return "", fmt.Errorf("%w: DISCORD_TOKEN", ErrKeyNotFound)
	default:
		return strings.TrimSpace(string(data)), nil
	}
}

// Encrypt wraps data in a sops binary document using the master keys
// configured in the environment
func Encrypt(data []byte) ([]byte, error) {
	if IsEncrypted(data, "binary") {
		return nil, ErrAlreadyEncrypted
	}
	storeConfig := &config.JSONBinaryStoreConfig{}
	input := jsonstore.NewBinaryStore(storeConfig)
	output := jsonstore.NewBinaryStore(storeConfig)

	branches, err := input.LoadPlainFile(data)
	if err != nil {
		return nil, fmt.Errorf("error loading data: %w", err)
	}
	tree := sopsapi.Tree{Branches: branches}
	keyGroups, err := masterKeyGroupsFromEnv()
	if err != nil {
		return nil, err
	}
	tree.Metadata = sopsapi.Metadata{
		KeyGroups: keyGroups,
		Version:   version.Version,
	}

	dataKey, errs := tree.GenerateDataKey()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed generating data key: %v", errs)
	}
	if err := scommon.EncryptTree(scommon.EncryptTreeOpts{
		DataKey: dataKey,
		Tree:    &tree,
		Cipher:  aes.NewCipher(),
	}); err != nil {
		return nil, fmt.Errorf("failed encrypt: %w", err)
	}

	encrypted, err := output.EmitEncryptedFile(tree)
	if err != nil {
		return nil, fmt.Errorf("failed output: %w", err)
	}
	return encrypted, nil
}

func masterKeyGroupsFromEnv() ([]sopsapi.KeyGroup, error) {
	keyGroups := []sopsapi.KeyGroup{}

	if recipients := os.Getenv("WARDEN_AGE_RECIPIENTS"); recipients != "" {
		ageKeys, err := age.MasterKeysFromRecipients(recipients)
		if err != nil {
			return nil, fmt.Errorf("parsing age recipients: %w", err)
		}
		keys := []skeys.MasterKey{}
		for _, k := range ageKeys {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}

	if rid := os.Getenv("WARDEN_GCP_KMS_RESOURCE_ID"); rid != "" {
		keys := []skeys.MasterKey{}
		for _, k := range gcpkms.MasterKeysFromResourceIDString(rid) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}

	if arns := os.Getenv("WARDEN_AWS_KMS_KEY_ARNS"); arns != "" {
		keys := []skeys.MasterKey{}
		profile := os.Getenv("WARDEN_AWS_KMS_PROFILE")
		for _, k := range awskms.MasterKeysFromArnString(arns, nil, profile) {
			keys = append(keys, k)
		}
		if len(keys) > 0 {
			keyGroups = append(keyGroups, keys)
		}
	}

	if len(keyGroups) == 0 {
		return nil, ErrNoMasterKeys
	}
	return keyGroups, nil
}
