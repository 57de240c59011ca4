package event

import (
	"context"
	"encoding/json"

	"github.com/matrixgo/sdk/crypto"
	"github.com/matrixgo/sdk/id"
	"github.com/matrixgo/sdk/internal/jsonutil"
	"github.com/matrixgo/sdk/sdkerr"
)

// Downloader fetches raw bytes for a resolved media URL. Implementations
// sit outside the core (§1: HTTP transport is an external collaborator).
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// FileCache is the local attachment cache consulted before downloading, and
// populated after (§4.B: "consults the local file cache (keyed by URI),
// downloads via an injected downloader if absent, stores when size <=
// database's max-file-size").
type FileCache interface {
	Get(uri string) ([]byte, bool)
	Put(uri string, data []byte) error
	MaxFileSize() int64
}

// AttachmentRequest parameters for GetAttachment.
type AttachmentRequest struct {
	Thumbnail       bool
	ThumbnailWidth  int
	ThumbnailHeight int
	ThumbnailMethod id.ThumbnailMethod
	Homeserver      string
}

// GetAttachment resolves, downloads (or cache-hits), and — if the
// attachment is encrypted — decrypts the media referenced by e's content
// (§4.B). Only m.room.message and m.sticker carry attachments.
func (e *Event) GetAttachment(ctx context.Context, req AttachmentRequest, dl Downloader, cache FileCache, enc crypto.Encryption) ([]byte, error) {
	if e.Type != TypeMessage && e.Type != TypeSticker {
		return nil, sdkerr.Attachmentf(sdkerr.WrongEventType, "event is not a message or sticker")
	}

	plainURI, hasPlainURI := jsonutil.NonEmptyString(e.Content, "url")
	fileInfo, isEncrypted := encryptedFileInfo(e.Content)

	var mxcURI string
	switch {
	case isEncrypted:
		mxcURI = fileInfo.URL
	case hasPlainURI:
		mxcURI = plainURI
	default:
		return nil, sdkerr.Attachmentf(sdkerr.NoAttachment, "event has no attachment")
	}

	parsed, err := id.ParseContentURI(mxcURI)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.Validation, "invalid content uri", err)
	}

	resolvedURL := parsed.DownloadURL(req.Homeserver)
	if req.Thumbnail {
		resolvedURL = parsed.ThumbnailURL(req.Homeserver, req.ThumbnailWidth, req.ThumbnailHeight, req.ThumbnailMethod)
	}

	raw, err := e.fetch(ctx, resolvedURL, dl, cache)
	if err != nil {
		return nil, err
	}

	if !isEncrypted {
		return raw, nil
	}

	if !enc.Enabled() {
		return nil, sdkerr.Attachmentf(sdkerr.EncryptionDisabled, "attachment is encrypted but encryption is disabled")
	}
	if len(fileInfo.Key) == 0 || fileInfo.IV == "" {
		return nil, sdkerr.Attachmentf(sdkerr.KeyOpsMissingDecrypt, "encrypted file envelope is missing key material")
	}
	plaintext, err := enc.DecryptFile(ctx, fileInfo, raw)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.Decryption, "decrypt attachment", err)
	}
	return plaintext, nil
}

func (e *Event) fetch(ctx context.Context, url string, dl Downloader, cache FileCache) ([]byte, error) {
	if cache != nil {
		if data, ok := cache.Get(url); ok {
			return data, nil
		}
	}
	data, err := dl.Download(ctx, url)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.Transport, "download attachment", err)
	}
	if cache != nil && int64(len(data)) <= cache.MaxFileSize() {
		_ = cache.Put(url, data)
	}
	return data, nil
}

// encryptedFileInfo reports whether content.file is present (meaning the
// attachment is encrypted, per §4.B: "file info has file.url instead of
// url"), returning its decoded envelope.
func encryptedFileInfo(content json.RawMessage) (crypto.EncryptedFileInfo, bool) {
	r := jsonutil.Get(content, "file")
	if !r.IsObject() {
		return crypto.EncryptedFileInfo{}, false
	}
	var info crypto.EncryptedFileInfo
	if err := json.Unmarshal([]byte(r.Raw), &info); err != nil {
		return crypto.EncryptedFileInfo{}, false
	}
	return info, true
}
