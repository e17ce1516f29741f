package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// uploadTree walks localDir and mirrors it under remoteDir. Directories are
// created as needed; existing remote files are replaced.
func uploadTree(ctx context.Context, client *sftp.Client, localDir, remoteDir string) error {
	info, err := os.Stat(localDir)
	if err != nil {
		return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir",
			fmt.Sprintf("local artifact %s", localDir), err)
	}
	if !info.IsDir() {
		return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir",
			fmt.Sprintf("local artifact %s is not a directory", localDir), nil)
	}

	if err := client.MkdirAll(remoteDir); err != nil {
		return classifySFTP("PutDir", remoteDir, err)
	}

	return filepath.WalkDir(localDir, func(localPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir", localPath, err)
		}
		if err := ctx.Err(); err != nil {
			return domain.NewStepError(domain.CategoryConnectivity, "PutDir", "cancelled", err)
		}

		rel, err := filepath.Rel(localDir, localPath)
		if err != nil {
			return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir", localPath, err)
		}
		remotePath := path.Join(remoteDir, filepath.ToSlash(rel))

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if err := client.MkdirAll(remotePath); err != nil {
				return classifySFTP("PutDir", remotePath, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and devices are not portable to shared hosting.
			return nil
		}
		return uploadFile(client, localPath, remotePath)
	})
}

// uploadFile copies one regular file, preserving its permission bits.
func uploadFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return domain.NewStepError(domain.CategoryRemoteWrite, "PutDir", localPath, err)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return classifySFTP("PutDir", remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return classifySFTP("PutDir", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return classifySFTP("PutDir", remotePath, err)
	}

	if err := client.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return classifySFTP("PutDir", remotePath, err)
	}
	return nil
}

// classifySFTP maps SFTP failures onto the step failure taxonomy.
func classifySFTP(op, remotePath string, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission) || strings.Contains(err.Error(), "permission denied"):
		return domain.NewStepError(domain.CategoryPermissionDenied, op, remotePath, err)
	case errors.Is(err, sftp.ErrSSHFxConnectionLost):
		return domain.NewStepError(domain.CategoryConnectivity, op, remotePath, err)
	default:
		return domain.NewStepError(domain.CategoryRemoteWrite, op, remotePath, err)
	}
}

// fsMode widens a permission value for the SFTP chmod call.
func fsMode(mode uint32) os.FileMode {
	return os.FileMode(mode).Perm()
}
