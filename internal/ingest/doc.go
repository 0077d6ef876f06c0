// Package ingest defines the data model, status messages, error taxonomy and
// collaborator interfaces shared by the ingest pipeline.
package ingest
