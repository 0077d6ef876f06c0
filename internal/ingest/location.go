package ingest

import (
	"errors"
	"fmt"
)

// LocationType names the storage system a Location points into.
type LocationType string

// Supported location types.
const (
	LocationS3           LocationType = "s3"
	LocationGCS          LocationType = "gcs"
	LocationFolderShared LocationType = "folder_shared"
)

// Location references an object outside the job message.
type Location struct {
	Type       LocationType `json:"type"`
	BucketName string       `json:"bucketName,omitempty"`
	FileName   string       `json:"fileName,omitempty"`
	FilePath   string       `json:"filePath,omitempty"`
	DomainName string       `json:"domainName,omitempty"`
}

// Key returns the object key within its bucket or folder.
func (l Location) Key() string {
	if l.Type == LocationFolderShared {
		return l.FilePath
	}
	return l.FileName
}

// Validate checks that the fields required by the location type are set.
func (l Location) Validate() error {
	switch l.Type {
	case LocationS3, LocationGCS:
		if l.BucketName == "" {
			return fmt.Errorf("%s location requires bucketName", l.Type)
		}
		if l.FileName == "" {
			return fmt.Errorf("%s location requires fileName", l.Type)
		}
	case LocationFolderShared:
		if l.FilePath == "" {
			return errors.New("folder_shared location requires filePath")
		}
	case "":
		return errors.New("location type is required")
	default:
		return fmt.Errorf("unknown location type %q", l.Type)
	}
	return nil
}

func (l Location) String() string {
	switch l.Type {
	case LocationFolderShared:
		return "file://" + l.FilePath
	case LocationGCS:
		return fmt.Sprintf("gs://%s/%s", l.BucketName, l.FileName)
	default:
		return fmt.Sprintf("%s://%s/%s", l.Type, l.BucketName, l.FileName)
	}
}
