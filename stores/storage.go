package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/stores/filesystem"
	"drawsync/stores/memory"
	"drawsync/stores/s3"
)

// GetStore selects the asset backend from the environment. A nil return means
// the asset pipeline is disabled: upload and fetch fail closed while the rest
// of the bridge keeps running.
func GetStore() core.AssetStore {
	storageType := os.Getenv("STORAGE_TYPE")
	if storageType == "" && os.Getenv("S3_BUCKET_NAME") != "" {
		storageType = "s3"
	}

	switch storageType {
	case "s3":
		bucket := os.Getenv("S3_BUCKET_NAME")
		if bucket == "" {
			logrus.Warn("S3_BUCKET_NAME not set, asset pipeline disabled")
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"storageType": "s3",
			"bucket":      bucket,
		}).Info("Use asset storage")
		return s3.NewStore(bucket, os.Getenv("ASSET_BASE_URL"))
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		logrus.WithFields(logrus.Fields{
			"storageType": "filesystem",
			"basePath":    basePath,
		}).Info("Use asset storage")
		return filesystem.NewStore(basePath)
	case "memory":
		logrus.WithField("storageType", "memory").Info("Use asset storage")
		return memory.NewStore()
	default:
		logrus.Warn("no asset storage configured, asset pipeline disabled")
		return nil
	}
}
