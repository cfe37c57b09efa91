package rekognition

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ipcam-analysis/internal/integrations/awsapi"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api := awsapi.NewWithCredentials(awsapi.Options{Region: "eu-west-1", Endpoint: server.URL}, staticCredentials())
	return NewClient(api, 75)
}

func TestDetectSendsSignedRequest(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "RekognitionService.DetectLabels", r.Header.Get("X-Amz-Target"))
		assert.Equal(t, "application/x-amz-json-1.1", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKIDTEST/"))
		assert.Contains(t, r.Header.Get("Authorization"), "/eu-west-1/rekognition/aws4_request")
		assert.NotEmpty(t, r.Header.Get("X-Amz-Date"))

		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		_, _ = io.WriteString(w, `{
			"Labels": [
				{"Name": "Car", "Confidence": 91.5,
				 "Parents": [{"Name": "Vehicle"}, {"Name": "Transportation"}],
				 "Instances": [{"BoundingBox": {"Width": 0.5, "Height": 0.25, "Left": 0.1, "Top": 0.2}, "Confidence": 90.1}]},
				{"Name": "Outdoors", "Confidence": 80}
			],
			"LabelModelVersion": "3.0"
		}`)
	})

	detections, err := client.Detect(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, "AQID", gotBody["Image"].(map[string]interface{})["Bytes"])
	assert.Equal(t, 75.0, gotBody["MinConfidence"])

	require.Len(t, detections, 2)
	assert.Equal(t, "Car", detections[0].Name)
	assert.Equal(t, 91.5, detections[0].Confidence)
	require.Len(t, detections[0].Parents, 2)
	assert.Equal(t, "Vehicle", detections[0].Parents[0].Name)
	require.Len(t, detections[0].Instances, 1)
	assert.Equal(t, 0.1, detections[0].Instances[0].BoundingBox.Left)
	assert.Empty(t, detections[1].Instances)
}

func TestDetectErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"__type":"com.amazonaws.rekognition#InvalidImageFormatException","Message":"Request has invalid image format"}`)
	})

	_, err := client.Detect(context.Background(), []byte{1})
	require.Error(t, err)

	var apiErr *awsapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "InvalidImageFormatException", apiErr.Type)
	assert.Equal(t, "Request has invalid image format", apiErr.Message)
}

func TestDetectMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Labels": [`)
	})

	_, err := client.Detect(context.Background(), []byte{1})
	assert.Error(t, err)
}

func TestDetectMissingLabels(t *testing.T) {
	for _, body := range []string{`{}`, `{"Labels":null}`, `{"LabelModelVersion":"3.0"}`} {
		t.Run(body, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})

			detections, err := client.Detect(context.Background(), []byte{1})
			assert.ErrorIs(t, err, ErrMissingLabels)
			assert.Nil(t, detections)
		})
	}
}

func TestDetectEmptyLabelList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Labels":[],"LabelModelVersion":"3.0"}`)
	})

	detections, err := client.Detect(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.NotNil(t, detections)
	assert.Empty(t, detections)
}

func TestDetectEmptyImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Detect(context.Background(), nil)
	assert.Error(t, err)
}

func TestDetectCredentialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer server.Close()

	failing := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no credentials")
	})
	client := NewClient(awsapi.NewWithCredentials(awsapi.Options{Region: "eu-west-1", Endpoint: server.URL}, failing), 75)

	_, err := client.Detect(context.Background(), []byte{1})
	assert.ErrorContains(t, err, "no credentials")
}
