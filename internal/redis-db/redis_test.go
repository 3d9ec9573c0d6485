/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redis_db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		wantErr  bool
	}{
		{name: "docker style", url: "redis:6379", addr: "redis:6379"},
		{name: "url with password", url: "redis://:password123@localhost:6379", addr: "localhost:6379", password: "password123"},
		{name: "url with bare password", url: "redis://secret@localhost:6379", addr: "localhost:6379", password: "secret"},
		{name: "empty", url: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedisURL(tt.url, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got.Addr)
			assert.Equal(t, tt.password, got.Password)
		})
	}
}

func TestParseRedisURL_SkipTLSVerify(t *testing.T) {
	opts, err := ParseRedisURL("rediss://localhost:6380", true)
	require.NoError(t, err)
	require.NotNil(t, opts.TLSConfig)
	assert.True(t, opts.TLSConfig.InsecureSkipVerify)
}

func TestNewRedisClient(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient([]string{server.Addr()}, false)
	require.NoError(t, err)
	defer client.Close()
	assert.NotNil(t, client.Client())

	_, err = NewRedisClient(nil, false)
	assert.Error(t, err)

	_, err = NewRedisClient([]string{"127.0.0.1:1"}, false)
	assert.Error(t, err)
}
