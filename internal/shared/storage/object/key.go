package object

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"medocs-backend/internal/shared/util"
)

// NewKey builds a storage key under the user's hashed namespace with a random
// prefix so repeated uploads of the same file name never collide.
func NewKey(userID, fileName string) (string, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(util.HashUserKey(userID), randomID()+"_"+sanitizedName), nil
}

// OwnedBy reports whether storageKey lives in the user's namespace.
func OwnedBy(storageKey, userID string) bool {
	clean, err := CleanKey(storageKey)
	if err != nil || userID == "" {
		return false
	}
	return strings.HasPrefix(filepath.ToSlash(clean), util.HashUserKey(userID)+"/")
}

// Sniff reads up to 512 bytes to detect the content type and returns a reader
// that replays them ahead of the rest of r.
func Sniff(r io.Reader, fileName string) (string, io.Reader, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("read sniff: %w", err)
	}
	sniffed := head[:n]
	return detectContentType(sniffed, fileName), io.MultiReader(bytes.NewReader(sniffed), r), nil
}

func detectContentType(head []byte, fileName string) string {
	detected := http.DetectContentType(head)
	// Text sniffing cannot tell a plain note from JSON or CSV; prefer the
	// extension when it names a known type.
	if strings.HasPrefix(detected, "text/plain") || detected == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
			return byExt
		}
	}
	return detected
}

// CleanKey rejects keys that escape the store root.
func CleanKey(storageKey string) (string, error) {
	clean := filepath.Clean(storageKey)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return clean, nil
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
