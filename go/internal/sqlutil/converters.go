package sqlutil

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgUUID converts a Go UUID pointer to pgtype.UUID
func ToPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// FromPgUUID converts pgtype.UUID to Go UUID pointer
func FromPgUUID(val pgtype.UUID) *uuid.UUID {
	if !val.Valid {
		return nil
	}
	id := uuid.UUID(val.Bytes)
	return &id
}

// ToPgInt4 converts a Go int to pgtype.Int4
func ToPgInt4(val int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(val), Valid: true}
}

// FromPgInt4 converts pgtype.Int4 to Go int, zero when NULL
func FromPgInt4(val pgtype.Int4) int {
	if !val.Valid {
		return 0
	}
	return int(val.Int32)
}
