package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"mockbase/auth"
	"mockbase/models"
)

// loadSeedData reads every *.json file in dir into a collection named after
// the file. Each file holds a map of record id to record body. A missing
// directory just means an empty store.
func loadSeedData(dir string) (map[string]map[string]models.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: seed directory %s does not exist, starting empty", dir)
			return nil, nil
		}
		return nil, err
	}

	data := make(map[string]map[string]models.Record)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var records map[string]models.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		data[name] = records
	}
	return data, nil
}

// seedDemoUsers registers the well-known practice accounts under fixed ids
// so the demo data's _ownerId references resolve. Their password is
// "123456".
func seedDemoUsers(provider *auth.Provider, identity string) {
	demo := map[string]models.Record{
		"35c62d76-8152-4626-8712-eeb96381bea8": {identity: "peter@abv.bg"},
		"847ec027-f659-4086-8032-5173e2f9c93a": {identity: "john@abv.bg"},
	}
	for id, profile := range demo {
		if _, err := provider.SeedUser(id, profile, "123456"); err != nil {
			log.Printf("WARN: failed to seed demo user %v: %v", profile[identity], err)
			continue
		}
		log.Printf("INFO: seeded demo user %v", profile[identity])
	}
}
