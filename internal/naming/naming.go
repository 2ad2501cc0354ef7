// Package naming derives collision-resistant storage keys from user supplied
// file names and keeps the human readable name recoverable as object metadata.
package naming

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MetadataKey is the user metadata entry carrying the encoded OriginalNameInfo.
const MetadataKey = "original-filename"

const fallbackBase = "file"

// OriginalNameInfo preserves the name a file was uploaded under.
type OriginalNameInfo struct {
	OriginalName string `json:"originalName"`
	Timestamp    int64  `json:"timestamp"`
	Extension    string `json:"extension"`
}

// Result is the outcome of key resolution.
type Result struct {
	Key              string           `json:"key"`
	OriginalNameInfo OriginalNameInfo `json:"originalNameInfo"`
}

// Resolver builds storage keys. The zero value uses the wall clock.
type Resolver struct {
	Now func() time.Time
}

// NewResolver returns a Resolver reading time from now.
func NewResolver(now func() time.Time) *Resolver {
	return &Resolver{Now: now}
}

// Resolve never fails: malformed names degrade to category/file_<ts>.
// category is used as given; it is not validated or escaped.
func (r *Resolver) Resolve(originalFileName, category string) Result {
	ts := r.timestamp()

	name := baseName(originalFileName)
	if !usable(name) {
		return fallback(category, ts)
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}

	return Result{
		Key: composeKey(category, base, ext, ts),
		OriginalNameInfo: OriginalNameInfo{
			OriginalName: base,
			Timestamp:    ts,
			Extension:    ext,
		},
	}
}

func (r *Resolver) timestamp() int64 {
	if r == nil || r.Now == nil {
		return time.Now().UnixMilli()
	}
	return r.Now().UnixMilli()
}

func composeKey(category, base, ext string, ts int64) string {
	key := category + "/" + base + "_" + strconv.FormatInt(ts, 10)
	if ext != "" {
		key += "." + ext
	}
	return key
}

func fallback(category string, ts int64) Result {
	return Result{
		Key:              composeKey(category, fallbackBase, "", ts),
		OriginalNameInfo: OriginalNameInfo{Timestamp: ts},
	}
}

// baseName strips every directory component, accepting both separators.
func baseName(p string) string {
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func usable(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return utf8.ValidString(name) && !strings.ContainsRune(name, 0)
}

// FileName rebuilds the name the object was uploaded under.
func (i OriginalNameInfo) FileName() string {
	if i.Extension == "" {
		return i.OriginalName
	}
	return i.OriginalName + "." + i.Extension
}

// Encode renders the info as base64 of its JSON form, the value stored under MetadataKey.
func (i OriginalNameInfo) Encode() string {
	b, err := json.Marshal(i)
	if err != nil {
		// a struct of strings and an int always marshals
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// Decode parses a value produced by Encode.
func Decode(s string) (OriginalNameInfo, error) {
	var info OriginalNameInfo
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return info, fmt.Errorf("decode original name: %w", err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("parse original name: %w", err)
	}
	return info, nil
}

// Metadata returns the object metadata map carrying the encoded info.
func (i OriginalNameInfo) Metadata() map[string]string {
	return map[string]string{MetadataKey: i.Encode()}
}

// FileNameFromMetadata recovers the original file name from object metadata,
// falling back to the last segment of key.
func FileNameFromMetadata(key string, metadata map[string]string) string {
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	v, ok := metadata[MetadataKey]
	if !ok || v == "" {
		return name
	}
	info, err := Decode(v)
	if err != nil || info.OriginalName == "" {
		return name
	}
	return info.FileName()
}
