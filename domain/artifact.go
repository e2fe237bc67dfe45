// Package domain holds the platform's entity types: the data model shared by
// the analysis pipeline, the bounty state machine, the consensus & payout
// engine, and the reputation engine. Types here are intentionally thin —
// invariant-enforcing behavior lives in the owning component package.
package domain

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ArtifactKind classifies what an Artifact's bytes represent, used by
// analyzers to decide whether they apply.
type ArtifactKind string

const (
	ArtifactKindFile ArtifactKind = "file"
	ArtifactKindURL  ArtifactKind = "url"
	ArtifactKindHash ArtifactKind = "hash"
)

// Digests holds the three content hashes computed for an Artifact's bytes.
type Digests struct {
	SHA256 string
	MD5    string
	SHA1   string
}

// ComputeDigests derives md5/sha1/sha256 from raw bytes. Pure; no I/O.
func ComputeDigests(data []byte) Digests {
	sha256Sum := sha256.Sum256(data)
	sha1Sum := sha1.Sum(data)
	md5Sum := md5.Sum(data)
	return Digests{
		SHA256: hex.EncodeToString(sha256Sum[:]),
		MD5:    hex.EncodeToString(md5Sum[:]),
		SHA1:   hex.EncodeToString(sha1Sum[:]),
	}
}

// Artifact is the unit being analysed. Identified by its content address
// (lowercase hex SHA-256), immutable once created.
type Artifact struct {
	ContentAddress   string // lowercase hex SHA-256, 64 chars
	Kind             ArtifactKind
	Size             int64
	DeclaredFilename string
	DeclaredMIME     string
	Digests          Digests
	CreatedAt        time.Time
}

// ArtifactRef is the lightweight reference passed to analyzers and carried
// by AnalysisResult/Submission — the full Artifact record lives only in C1.
type ArtifactRef struct {
	ContentAddress string
	Kind           ArtifactKind
	DeclaredMIME   string
}
