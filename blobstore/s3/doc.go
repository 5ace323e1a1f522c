// Package s3 stores model snapshots in Amazon S3 and records completed
// snapshots in a DynamoDB commit log.
//
// Uploads go through the S3 transfer manager so large index files are sent as
// multipart uploads. The DynamoDB table provides the compare-and-swap
// semantics S3 lacks: concurrent writers cannot both claim the same version.
package s3
