package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ipni/go-freshcache/model"
)

type recordPutter interface {
	Put(context.Context, *model.Record) error
}

// loadSeed reads a JSON array of records from fileName and stores each one.
// Returns the number of records stored.
func loadSeed(ctx context.Context, st recordPutter, fileName string) (int, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return 0, fmt.Errorf("cannot read seed file: %w", err)
	}
	var recs []*model.Record
	if err = json.Unmarshal(data, &recs); err != nil {
		return 0, fmt.Errorf("cannot decode seed file %s: %w", fileName, err)
	}
	for i, rec := range recs {
		if rec == nil {
			return i, fmt.Errorf("seed record %d is null", i)
		}
		if err = st.Put(ctx, rec); err != nil {
			return i, fmt.Errorf("cannot store seed record %d: %w", i, err)
		}
	}
	return len(recs), nil
}
