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

package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/tally/config"
)

func TestSendWebhook_SignsBody(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var signature, custom string
	var body []byte
	httpmock.RegisterResponder("POST", "https://hooks.example.com/tally",
		func(req *http.Request) (*http.Response, error) {
			signature = req.Header.Get(SignatureHeader)
			custom = req.Header.Get("X-Env")
			body, _ = io.ReadAll(req.Body)
			return httpmock.NewStringResponse(200, `{}`), nil
		})

	cfg := config.WebhookConfig{
		Url:     "https://hooks.example.com/tally",
		Secret:  "s3cret",
		Headers: map[string]string{"X-Env": "test"},
	}
	err := SendWebhook(context.Background(), cfg, "settlement.completed", map[string]string{"pending_id": "pend_1"})
	require.NoError(t, err)

	assert.Equal(t, "sha256="+Sign("s3cret", body), signature)
	assert.Equal(t, "test", custom)
	assert.Contains(t, string(body), `"event":"settlement.completed"`)
	assert.Contains(t, string(body), `"pending_id":"pend_1"`)
}

func TestSendWebhook_NoURL(t *testing.T) {
	assert.NoError(t, SendWebhook(context.Background(), config.WebhookConfig{}, "settlement.completed", nil))
}

func TestSendWebhook_ErrorStatus(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/tally", httpmock.NewStringResponder(500, "boom"))

	err := SendWebhook(context.Background(), config.WebhookConfig{Url: "https://hooks.example.com/tally"}, "settlement.completed", nil)
	assert.Error(t, err)
}

func TestSign_IsDeterministic(t *testing.T) {
	a := Sign("key", []byte("payload"))
	assert.Equal(t, a, Sign("key", []byte("payload")))
	assert.NotEqual(t, a, Sign("other", []byte("payload")))
	assert.Len(t, a, 64)
}

func TestSendSlack(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var text string
	httpmock.RegisterResponder("POST", "https://hooks.slack.com/services/T000",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			text = string(raw)
			return httpmock.NewStringResponse(200, ""), nil
		})

	err := sendSlack("https://hooks.slack.com/services/T000", errors.New("settlement failed"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "settlement failed"))
	assert.True(t, strings.Contains(text, "Error From Tally"))
}
