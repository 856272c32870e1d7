package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

// Snapshot uploads go straight from the browser to the bucket via a V4
// signed PUT URL; complete verifies the object and builds a thumbnail.

type uploadSignRequest struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type uploadCompleteRequest struct {
	ObjectKey string `json:"objectKey"`
}

type uploadCompleteResponse struct {
	SnapshotURL        string `json:"snapshotUrl"`
	ThumbnailURL       string `json:"thumbnailUrl,omitempty"`
	ObjectKey          string `json:"objectKey"`
	ThumbnailObjectKey string `json:"thumbnailObjectKey,omitempty"`
}

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadSignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.FileName == "" || req.MimeType == "" || req.Size <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileName, mimeType and size are required"})
			return
		}
		if req.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}
		if !imageMimeTypes[req.MimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
			return
		}

		ext := strings.ToLower(path.Ext(req.FileName))
		objectKey := path.Join("snapshots", utils.GenerateUniqueFilename()+ext)

		signed, err := utils.SignUpload(c.Request.Context(), objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "signUploadHandler", "sign upload", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign upload"})
			return
		}
		c.JSON(http.StatusOK, signed)
	}
}

func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		objectKey := utils.ExtractObjectKeyFromURL(req.ObjectKey)
		if objectKey == "" || !strings.HasPrefix(objectKey, "snapshots/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid objectKey"})
			return
		}

		resp := uploadCompleteResponse{
			ObjectKey:   objectKey,
			SnapshotURL: utils.BuildObjectAccessURL(objectKey),
		}

		thumbnailKey, err := createThumbnail(c.Request.Context(), objectKey)
		if err != nil {
			// Snapshot is still usable without a thumbnail.
			config.LogError(config.GetLogger(), "uploads.go", "completeUploadHandler", "create thumbnail", objectKey, err)
		} else {
			resp.ThumbnailObjectKey = thumbnailKey
			resp.ThumbnailURL = utils.BuildObjectAccessURL(thumbnailKey)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func createThumbnail(ctx context.Context, objectKey string) (string, error) {
	client, err := utils.GetGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}

	reader, err := client.Bucket(bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxUploadSizeBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return "", fmt.Errorf("file size exceeds %d bytes", maxUploadSizeBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := utils.UploadFileToGCS(ctx, thumbnailKey, &buf); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}
