package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestToken(userID string) *RefreshToken {
	raw, _ := GenerateRefreshToken()
	return &RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestTokenRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "tokenuser", RoleViewer)
	token := newTestToken(user.ID)

	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token.ID == "" {
		t.Fatal("Create() should generate an ID")
	}
	if token.FamilyID == "" {
		t.Fatal("Create() should generate a family ID")
	}

	got, err := repo.GetByTokenHash(ctx, token.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if got.ID != token.ID {
		t.Errorf("ID = %q, want %q", got.ID, token.ID)
	}
	if got.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", got.UserID, user.ID)
	}
	if got.Revoked {
		t.Error("new token should not be revoked")
	}
}

func TestTokenRepository_GetByTokenHash_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)

	_, err := repo.GetByTokenHash(context.Background(), HashToken("no-such-token"))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenRepository_Revoke(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "revokeuser", RoleViewer)
	token := newTestToken(user.ID)
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Revoke(ctx, token.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, err := repo.GetByTokenHash(ctx, token.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash() error = %v", err)
	}
	if !got.Revoked {
		t.Error("token should be revoked")
	}
}

func TestTokenRepository_RevokeFamily(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "familyuser", RoleViewer)

	first := newTestToken(user.ID)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second := newTestToken(user.ID)
	second.FamilyID = first.FamilyID
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.RevokeFamily(ctx, first.FamilyID); err != nil {
		t.Fatalf("RevokeFamily() error = %v", err)
	}

	for _, hash := range []string{first.TokenHash, second.TokenHash} {
		got, err := repo.GetByTokenHash(ctx, hash)
		if err != nil {
			t.Fatalf("GetByTokenHash() error = %v", err)
		}
		if !got.Revoked {
			t.Error("family member token should be revoked")
		}
	}
}

func TestTokenRepository_RevokeAllForUser(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "logoutall", RoleViewer)

	for range 3 {
		if err := repo.Create(ctx, newTestToken(user.ID)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.RevokeAllForUser(ctx, user.ID); err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}

	active, err := repo.ListActiveByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListActiveByUser() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected 0 active tokens, got %d", len(active))
	}
}

func TestTokenRepository_RotateRefreshToken(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "rotator", RoleAnalyst)

	old := newTestToken(user.ID)
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	replacement := newTestToken(user.ID)
	replacement.FamilyID = old.FamilyID
	if err := repo.RotateRefreshToken(ctx, old.ID, replacement); err != nil {
		t.Fatalf("RotateRefreshToken() error = %v", err)
	}

	gotOld, err := repo.GetByTokenHash(ctx, old.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash(old) error = %v", err)
	}
	if !gotOld.Revoked {
		t.Error("rotated-out token should be revoked")
	}

	gotNew, err := repo.GetByTokenHash(ctx, replacement.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash(new) error = %v", err)
	}
	if gotNew.Revoked {
		t.Error("replacement token should be active")
	}
	if gotNew.FamilyID != old.FamilyID {
		t.Errorf("FamilyID = %q, want %q", gotNew.FamilyID, old.FamilyID)
	}
}

func TestTokenRepository_ListActiveByUser(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "lister", RoleViewer)

	active := newTestToken(user.ID)
	if err := repo.Create(ctx, active); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expired := newTestToken(user.ID)
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.ListActiveByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListActiveByUser() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 active token, got %d", len(got))
	}
	if got[0].ID != active.ID {
		t.Errorf("ID = %q, want %q", got[0].ID, active.ID)
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "cleaner", RoleViewer)

	keep := newTestToken(user.ID)
	if err := repo.Create(ctx, keep); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expired := newTestToken(user.ID)
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	count, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", count)
	}

	if _, err := repo.GetByTokenHash(ctx, keep.TokenHash); err != nil {
		t.Errorf("unexpired token should survive: %v", err)
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	raw, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	if HashToken(raw) != HashToken(raw) {
		t.Error("HashToken should be deterministic")
	}
	if HashToken(raw) == raw {
		t.Error("HashToken should not return the raw token")
	}
}
