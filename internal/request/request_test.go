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

package request

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	body, err := ToJsonReq(map[string]string{"event": "settlement.completed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"settlement.completed"}`, body.String())

	_, err = ToJsonReq(make(chan int))
	assert.Error(t, err)
}

func TestCall_DecodesResponse(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/tally",
		httpmock.NewStringResponder(200, `{"ok":true}`))

	body, _ := ToJsonReq(map[string]int{"n": 1})
	req, err := http.NewRequest(http.MethodPost, "https://hooks.example.com/tally", body)
	require.NoError(t, err)

	var reply map[string]bool
	resp, err := Call(req, &reply)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, reply["ok"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestCall_EmptyBody(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/empty", httpmock.NewStringResponder(204, ""))

	req, _ := http.NewRequest(http.MethodPost, "https://hooks.example.com/empty", nil)
	var reply map[string]interface{}
	_, err := Call(req, &reply)
	assert.NoError(t, err)
	assert.Nil(t, reply)
}

func TestCall_ErrorStatus(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/down", httpmock.NewStringResponder(503, "unavailable"))

	req, _ := http.NewRequest(http.MethodPost, "https://hooks.example.com/down", nil)
	resp, err := Call(req, nil)
	assert.Error(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.Contains(t, err.Error(), "unavailable")
}
