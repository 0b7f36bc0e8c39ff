package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ipni/go-freshcache/model"
	"github.com/stretchr/testify/require"
)

func TestStatsAdd(t *testing.T) {
	var s model.Stats
	s.Add(model.Stats{
		CommitsCount: 2,
		Languages: map[string]model.Language{
			"Go": {Additions: 10, Deletions: 1},
		},
	})
	s.Add(model.Stats{
		CommitsCount: 1,
		PRsCount:     3,
		Languages: map[string]model.Language{
			"Go":     {Additions: 5},
			"Python": {Deletions: 4},
		},
	})
	s.Add(model.Stats{IssuesCount: 1})

	require.Equal(t, 3, s.CommitsCount)
	require.Equal(t, 3, s.PRsCount)
	require.Equal(t, 1, s.IssuesCount)
	require.Equal(t, model.Language{Additions: 15, Deletions: 1}, s.Languages["Go"])
	require.Equal(t, model.Language{Deletions: 4}, s.Languages["Python"])
}

func TestRecordJSONFieldNames(t *testing.T) {
	rec := model.Record{
		EntityID:    "alice",
		Credential:  "token",
		LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(&rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Equal(t, "alice", fields["entity_id"])
	require.Equal(t, "token", fields["credential"])
	require.Contains(t, fields, "last_updated")
	require.NotContains(t, fields, "raw_data")

	md := rec.Metadata()
	require.Equal(t, "alice", md.EntityID)
	require.Equal(t, "token", md.Credential)
}
