package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/activity_merge_events-value/versions/latest":
			http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/activity_merge_events-value/versions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
			_, _ = w.Write([]byte(`{"id":17}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "activity_merge_events-value", mergeResolvedSchema)
	require.NoError(t, err)
	assert.Equal(t, 17, id)
	assert.Equal(t, "JSON", registered["schemaType"])
}

func TestSchemaRegistryReusesLatestVersion(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		_, _ = w.Write([]byte(`{"id":5,"version":2}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "activity_link_events-value", workoutLinkedSchema)
	require.NoError(t, err)
	assert.Equal(t, 5, id)
	assert.Zero(t, posts)
}

func TestSchemaRegistrySurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSchemaCatalogCoversRecordedEvents(t *testing.T) {
	for eventType, entry := range schemaCatalog {
		var doc map[string]any
		require.NoErrorf(t, json.Unmarshal([]byte(entry.Schema), &doc), "schema for %s", eventType)
		assert.Equal(t, "object", doc["type"])
	}
}
