package upload

import (
	"github.com/code19m/errx"
)

const (
	CodeHashingFailed       = "HASHING_FAILED"
	CodeStorageWriteFailed  = "STORAGE_WRITE_FAILED"
	CodeStorageReadFailed   = "STORAGE_READ_FAILED"
	CodeStorageDeleteFailed = "STORAGE_DELETE_FAILED"
	CodePersistenceFailed   = "PERSISTENCE_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeNoPermission        = "NO_PERMISSION"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
)

func hashingFailed(err error) error {
	return errx.Wrap(err, errx.WithType(errx.T_Internal), errx.WithCode(CodeHashingFailed))
}

func storageWriteFailed(err error, objectID string) error {
	return errx.Wrap(err,
		errx.WithType(errx.T_Internal),
		errx.WithCode(CodeStorageWriteFailed),
		errx.WithDetails(errx.D{"object_id": objectID}),
	)
}

func storageReadFailed(err error, objectID string) error {
	return errx.Wrap(err,
		errx.WithType(errx.T_Internal),
		errx.WithCode(CodeStorageReadFailed),
		errx.WithDetails(errx.D{"object_id": objectID}),
	)
}

func storageDeleteFailed(err error, objectID string) error {
	return errx.Wrap(err,
		errx.WithType(errx.T_Internal),
		errx.WithCode(CodeStorageDeleteFailed),
		errx.WithDetails(errx.D{"object_id": objectID}),
	)
}

func persistenceFailed(err error) error {
	return errx.Wrap(err, errx.WithType(errx.T_Internal), errx.WithCode(CodePersistenceFailed))
}

func notFound(msg string) error {
	return errx.New(msg, errx.WithType(errx.T_NotFound), errx.WithCode(CodeNotFound))
}

func noPermission(msg string) error {
	return errx.New(msg, errx.WithType(errx.T_Forbidden), errx.WithCode(CodeNoPermission))
}

func invalidState(msg string) error {
	return errx.New(msg, errx.WithType(errx.T_Validation), errx.WithCode(CodeInvalidState))
}

func invalidArgument(msg string) error {
	return errx.New(msg, errx.WithType(errx.T_Validation), errx.WithCode(CodeInvalidArgument))
}

// Code returns the taxonomy code carried by err.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return errx.AsErrorX(err).Code()
}
