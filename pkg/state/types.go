package state

import "path/filepath"

type Paths struct {
	DB      string
	Docs    string // pebble document store
	Blobs   string // committed blob tree
	Staging string // in-flight uploads, swept by the janitor
	State   string
	Tmp     string
	Tel     string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	blobs := filepath.Join(dbPath, "blobs")
	return Paths{
		DB: dbPath,

		Docs:    filepath.Join(dbPath, "docs"),
		Blobs:   blobs,
		Staging: filepath.Join(blobs, ".staging"),

		State: statePath,
		Tmp:   filepath.Join(statePath, "tmp"),
		Tel:   filepath.Join(statePath, "telemetry"),
	}
}

func DocsPath(dbPath string) string { return PathsFor(dbPath).Docs }
func BlobsPath(dbPath string) string { return PathsFor(dbPath).Blobs }
func TelPath(dbPath string) string { return PathsFor(dbPath).Tel }
