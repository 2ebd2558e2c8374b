package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
	"access-key-service/internal/keygen"
)

// mockAccessKeyRepository は条件付き更新を含めてストアの振る舞いを模倣するモック。
type mockAccessKeyRepository struct {
	mu        sync.Mutex
	keys      map[string]*domain.AccessKey
	createErr error
	findErr   error
}

func newMockAccessKeyRepository() *mockAccessKeyRepository {
	return &mockAccessKeyRepository{keys: make(map[string]*domain.AccessKey)}
}

func (m *mockAccessKeyRepository) Create(ctx context.Context, key *domain.AccessKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := m.keys[key.AccessKeyID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAccessKeyIDCollision, key.AccessKeyID)
	}
	stored := *key
	stored.UpdatedAt = key.CreatedAt
	m.keys[key.AccessKeyID] = &stored
	return nil
}

func (m *mockAccessKeyRepository) FindByID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	key, ok := m.keys[accessKeyID]
	if !ok {
		return nil, nil
	}
	copied := *key
	return &copied, nil
}

func (m *mockAccessKeyRepository) FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []*domain.AccessKey
	for _, key := range m.keys {
		if key.OwnerID == ownerID {
			copied := *key
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].AccessKeyID < result[j].AccessKeyID
	})
	return result, nil
}

func (m *mockAccessKeyRepository) Revoke(ctx context.Context, accessKeyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[accessKeyID]
	if !ok || key.Status != domain.AccessKeyStatusActive {
		return false, nil
	}
	key.Status = domain.AccessKeyStatusRevoked
	return true, nil
}

func (m *mockAccessKeyRepository) UpdateCiphertext(ctx context.Context, accessKeyID, expectedTag string, ciphertext []byte, newTag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[accessKeyID]
	if !ok || key.EncryptionMetadata != expectedTag {
		return false, nil
	}
	key.SecretCiphertext = ciphertext
	key.EncryptionMetadata = newTag
	return true, nil
}

func (m *mockAccessKeyRepository) get(accessKeyID string) *domain.AccessKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[accessKeyID]
}

// mockProvider はタグを接頭辞に付けてバイト列を反転させるだけの暗号バックエンド。
type mockProvider struct {
	tag        string
	encryptErr error
	onEncrypt  func()
}

func (m *mockProvider) Tag() string { return m.tag }

func (m *mockProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if m.onEncrypt != nil {
		m.onEncrypt()
	}
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	out := []byte(m.tag + ":")
	for i := len(plaintext) - 1; i >= 0; i-- {
		out = append(out, plaintext[i])
	}
	return out, nil
}

func (m *mockProvider) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	prefix := []byte(m.tag + ":")
	if !bytes.HasPrefix(blob, prefix) {
		return nil, domain.ErrCiphertextAuthentication
	}
	body := blob[len(prefix):]
	out := make([]byte, 0, len(body))
	for i := len(body) - 1; i >= 0; i-- {
		out = append(out, body[i])
	}
	return out, nil
}

// mockGenerator は決まった値を返す生成器。
type mockGenerator struct {
	ids    []string
	secret string
	err    error
	calls  int
}

func (m *mockGenerator) GenerateAccessKeyID() (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	id := m.ids[0]
	if len(m.ids) > 1 {
		m.ids = m.ids[1:]
	}
	return id, nil
}

func (m *mockGenerator) GenerateSecret() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.secret, nil
}

const (
	testKeyID1  = "AKAAAAAAAAAAAAAAAAA1"
	testKeyID2  = "AKAAAAAAAAAAAAAAAAA2"
	testSecret  = "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXNlY3I"
	activeTag   = "mock-active"
	previousTag = "mock-previous"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 123456789, time.UTC)

func newTestRegistry(t *testing.T, providers ...crypto.Provider) *crypto.Registry {
	t.Helper()
	if len(providers) == 0 {
		providers = []crypto.Provider{&mockProvider{tag: activeTag}}
	}
	reg, err := crypto.NewRegistry(providers[0], providers[1:]...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

func newTestService(t *testing.T, repo *mockAccessKeyRepository, registry CryptoRegistry, gen SecretGenerator) *AccessKeyService {
	t.Helper()
	s := NewAccessKeyService(repo, registry, gen)
	s.now = func() time.Time { return testNow }
	return s
}

func TestAccessKeyService_CreateAccessKey_Success(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	created, err := service.CreateAccessKey(ctx, "user-42", "ci pipeline")
	if err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}
	if created.AccessKeyID != testKeyID1 || created.Secret != testSecret {
		t.Errorf("unexpected result: %+v", created)
	}

	stored := repo.get(testKeyID1)
	if stored == nil {
		t.Fatal("expected stored key")
	}
	if stored.Status != domain.AccessKeyStatusActive {
		t.Errorf("expected ACTIVE, got %s", stored.Status)
	}
	if stored.EncryptionMetadata != activeTag {
		t.Errorf("expected tag %s, got %s", activeTag, stored.EncryptionMetadata)
	}
	if bytes.Contains(stored.SecretCiphertext, []byte(testSecret)) {
		t.Error("plaintext secret must not be stored")
	}
	if !stored.CreatedAt.Equal(testNow.Truncate(time.Microsecond)) {
		t.Errorf("unexpected created_at: %v", stored.CreatedAt)
	}
}

func TestAccessKeyService_CreateAccessKey_Validation(t *testing.T) {
	tests := []struct {
		name        string
		ownerID     string
		description string
		wantErr     error
	}{
		{"empty owner", "", "d", domain.ErrInvalidOwnerID},
		{"blank owner", "   ", "d", domain.ErrInvalidOwnerID},
		{"control character in owner", "user\r\n42", "d", domain.ErrInvalidOwnerID},
		{"long description", "user-42", strings.Repeat("x", domain.MaxDescriptionLength+1), domain.ErrInvalidDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockAccessKeyRepository()
			gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
			service := newTestService(t, repo, newTestRegistry(t), gen)

			created, err := service.CreateAccessKey(context.Background(), tt.ownerID, tt.description)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if created != nil {
				t.Error("expected no result")
			}
			if gen.calls != 0 {
				t.Error("generator must not be called for invalid input")
			}
		})
	}
}

func TestAccessKeyService_CreateAccessKey_NoPartialState(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		provider *mockProvider
		genErr   error
		wantErr  error
	}{
		{"crypto unavailable", nil, &mockProvider{tag: activeTag, encryptErr: domain.ErrCryptoUnavailable}, nil, domain.ErrCryptoUnavailable},
		{"store failure", errors.New("connection refused"), &mockProvider{tag: activeTag}, nil, nil},
		{"random source failure", nil, &mockProvider{tag: activeTag}, domain.ErrRandomSourceUnavailable, domain.ErrRandomSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockAccessKeyRepository()
			repo.createErr = tt.repoErr
			gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret, err: tt.genErr}
			service := newTestService(t, repo, newTestRegistry(t, tt.provider), gen)

			created, err := service.CreateAccessKey(context.Background(), "user-42", "")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if created != nil {
				t.Error("secret must not be returned on failure")
			}
			if repo.get(testKeyID1) != nil {
				t.Error("no record may remain after a failed create")
			}
		})
	}
}

func TestAccessKeyService_CreateAccessKey_Collision(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-1", "first"); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}

	_, err := service.CreateAccessKey(ctx, "user-2", "second")
	if !errors.Is(err, domain.ErrAccessKeyIDCollision) {
		t.Fatalf("expected ErrAccessKeyIDCollision, got %v", err)
	}
	if repo.get(testKeyID1).OwnerID != "user-1" {
		t.Error("existing record must not be overwritten")
	}
}

func TestAccessKeyService_CreateAccessKey_CancelledDuringEncrypt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	provider := &mockProvider{tag: activeTag, onEncrypt: cancel}
	service := newTestService(t, repo, newTestRegistry(t, provider), gen)

	created, err := service.CreateAccessKey(ctx, "user-42", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if created != nil {
		t.Error("secret must not be returned without a persisted record")
	}
	if repo.get(testKeyID1) != nil {
		t.Error("no record may be persisted after cancellation")
	}
}

func TestAccessKeyService_GetAccessKey(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", "ci pipeline"); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}

	md, err := service.GetAccessKey(ctx, testKeyID1)
	if err != nil {
		t.Fatalf("GetAccessKey failed: %v", err)
	}
	if md.OwnerID != "user-42" || md.Description != "ci pipeline" || md.Status != domain.AccessKeyStatusActive {
		t.Errorf("unexpected metadata: %+v", md)
	}

	_, err = service.GetAccessKey(ctx, testKeyID2)
	if !errors.Is(err, domain.ErrAccessKeyNotFound) {
		t.Errorf("expected ErrAccessKeyNotFound, got %v", err)
	}
}

func TestAccessKeyService_GetAccessKey_StoreFailure(t *testing.T) {
	repo := newMockAccessKeyRepository()
	repo.findErr = errors.New("connection reset")
	service := newTestService(t, repo, newTestRegistry(t), &mockGenerator{})

	_, err := service.GetAccessKey(context.Background(), testKeyID1)
	if err == nil || errors.Is(err, domain.ErrAccessKeyNotFound) {
		t.Errorf("store failure must be distinct from not-found, got %v", err)
	}
}

func TestAccessKeyService_ListAccessKeys(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID2, testKeyID1, "AKAAAAAAAAAAAAAAAAA3"}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	for _, owner := range []string{"user-42", "user-42", "user-7"} {
		if _, err := service.CreateAccessKey(ctx, owner, ""); err != nil {
			t.Fatalf("CreateAccessKey failed: %v", err)
		}
	}

	list, err := service.ListAccessKeys(ctx, "user-42")
	if err != nil {
		t.Fatalf("ListAccessKeys failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(list))
	}
	// 同時刻の場合はID順
	if list[0].AccessKeyID != testKeyID1 || list[1].AccessKeyID != testKeyID2 {
		t.Errorf("unexpected order: %s, %s", list[0].AccessKeyID, list[1].AccessKeyID)
	}

	empty, err := service.ListAccessKeys(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListAccessKeys failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %d", len(empty))
	}

	if _, err := service.ListAccessKeys(ctx, ""); !errors.Is(err, domain.ErrInvalidOwnerID) {
		t.Errorf("expected ErrInvalidOwnerID, got %v", err)
	}
}

// get・list の結果にはシークレットも暗号文も含まれない。
func TestAccessKeyService_SecretSecrecy(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}
	ciphertext := string(repo.get(testKeyID1).SecretCiphertext)

	check := func(state string) {
		md, err := service.GetAccessKey(ctx, testKeyID1)
		if err != nil {
			t.Fatalf("GetAccessKey failed: %v", err)
		}
		list, err := service.ListAccessKeys(ctx, "user-42")
		if err != nil {
			t.Fatalf("ListAccessKeys failed: %v", err)
		}
		for _, out := range []string{fmt.Sprintf("%+v", *md), fmt.Sprintf("%+v", *list[0])} {
			if strings.Contains(out, testSecret) || strings.Contains(out, ciphertext) {
				t.Errorf("%s: metadata leaks secret material: %s", state, out)
			}
		}
	}

	check("active")
	if err := service.RevokeAccessKey(ctx, testKeyID1); err != nil {
		t.Fatalf("RevokeAccessKey failed: %v", err)
	}
	check("revoked")
}

func TestAccessKeyService_RevokeAccessKey_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := service.RevokeAccessKey(ctx, testKeyID1); err != nil {
			t.Fatalf("revoke #%d failed: %v", i+1, err)
		}
	}
	if repo.get(testKeyID1).Status != domain.AccessKeyStatusRevoked {
		t.Error("expected REVOKED")
	}

	if err := service.RevokeAccessKey(ctx, testKeyID2); err != nil {
		t.Errorf("revoking an absent key should succeed, got %v", err)
	}
	if repo.get(testKeyID2) != nil {
		t.Error("revoking an absent key must not create a record")
	}
}

// 失効後はどの操作でも ACTIVE に戻らない。
func TestAccessKeyService_LifecycleMonotonicity(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	previous := &mockProvider{tag: previousTag}
	service := newTestService(t, repo, newTestRegistry(t, previous), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}
	if err := service.RevokeAccessKey(ctx, testKeyID1); err != nil {
		t.Fatalf("RevokeAccessKey failed: %v", err)
	}

	// 別のバックエンドを有効にして再暗号化しても状態は変わらない
	service.registry = newTestRegistry(t, &mockProvider{tag: activeTag}, previous)
	if _, err := service.RewrapSecret(ctx, testKeyID1); err != nil {
		t.Fatalf("RewrapSecret failed: %v", err)
	}
	_ = service.RevokeAccessKey(ctx, testKeyID1)
	if err := service.VerifySecret(ctx, testKeyID1, testSecret); !errors.Is(err, domain.ErrAccessKeyRevoked) {
		t.Errorf("expected ErrAccessKeyRevoked, got %v", err)
	}

	md, err := service.GetAccessKey(ctx, testKeyID1)
	if err != nil {
		t.Fatalf("GetAccessKey failed: %v", err)
	}
	if md.Status != domain.AccessKeyStatusRevoked {
		t.Errorf("expected REVOKED, got %s", md.Status)
	}
}

func TestAccessKeyService_DecryptSecret(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}
	key := repo.get(testKeyID1)

	plaintext, err := service.DecryptSecret(ctx, key)
	if err != nil {
		t.Fatalf("DecryptSecret failed: %v", err)
	}
	if string(plaintext) != testSecret {
		t.Errorf("expected %q, got %q", testSecret, plaintext)
	}

	unknown := *key
	unknown.EncryptionMetadata = "retired-backend"
	if _, err := service.DecryptSecret(ctx, &unknown); !errors.Is(err, domain.ErrUnknownEncryptionBackend) {
		t.Errorf("expected ErrUnknownEncryptionBackend, got %v", err)
	}

	tampered := *key
	tampered.SecretCiphertext = []byte("garbage")
	if _, err := service.DecryptSecret(ctx, &tampered); !errors.Is(err, domain.ErrCiphertextAuthentication) {
		t.Errorf("expected ErrCiphertextAuthentication, got %v", err)
	}
}

func TestAccessKeyService_VerifySecret(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1}, secret: testSecret}
	service := newTestService(t, repo, newTestRegistry(t), gen)

	if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}

	if err := service.VerifySecret(ctx, testKeyID1, testSecret); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := service.VerifySecret(ctx, testKeyID1, testSecret[:42]+"x"); !errors.Is(err, domain.ErrSecretMismatch) {
		t.Errorf("expected ErrSecretMismatch, got %v", err)
	}
	if err := service.VerifySecret(ctx, testKeyID2, testSecret); !errors.Is(err, domain.ErrAccessKeyNotFound) {
		t.Errorf("expected ErrAccessKeyNotFound, got %v", err)
	}
}

func TestAccessKeyService_RewrapSecret(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	gen := &mockGenerator{ids: []string{testKeyID1, testKeyID2}, secret: testSecret}
	previous := &mockProvider{tag: previousTag}
	service := newTestService(t, repo, newTestRegistry(t, previous), gen)

	for i := 0; i < 2; i++ {
		if _, err := service.CreateAccessKey(ctx, "user-42", ""); err != nil {
			t.Fatalf("CreateAccessKey failed: %v", err)
		}
	}

	// 新しいバックエンドを有効にし、古いバックエンドは復号専用にする
	service.registry = newTestRegistry(t, &mockProvider{tag: activeTag}, previous)

	changed, err := service.RewrapSecret(ctx, testKeyID1)
	if err != nil {
		t.Fatalf("RewrapSecret failed: %v", err)
	}
	if !changed {
		t.Error("expected rewrap to change the key")
	}
	if got := repo.get(testKeyID1).EncryptionMetadata; got != activeTag {
		t.Errorf("expected tag %s, got %s", activeTag, got)
	}
	if err := service.VerifySecret(ctx, testKeyID1, testSecret); err != nil {
		t.Errorf("secret must survive rewrap: %v", err)
	}

	changed, err = service.RewrapSecret(ctx, testKeyID1)
	if err != nil || changed {
		t.Errorf("second rewrap should be a no-op: changed=%v err=%v", changed, err)
	}

	count, err := service.RewrapOwnerSecrets(ctx, "user-42")
	if err != nil {
		t.Fatalf("RewrapOwnerSecrets failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 rewrapped key, got %d", count)
	}

	if _, err := service.RewrapSecret(ctx, "AKZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, domain.ErrAccessKeyNotFound) {
		t.Errorf("expected ErrAccessKeyNotFound, got %v", err)
	}
}

var accessKeyIDPattern = regexp.MustCompile(`^AK[A-Z0-9]{18}$`)

// 実際の生成器とAES-GCMバックエンドを使ったシナリオ。
func TestAccessKeyService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, crypto.MasterKeySize)
	if _, err := rand.Read(masterKey); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	aes, err := crypto.NewAESGCM(masterKey)
	if err != nil {
		t.Fatalf("NewAESGCM failed: %v", err)
	}

	repo := newMockAccessKeyRepository()
	service := newTestService(t, repo, newTestRegistry(t, aes), keygen.NewGenerator())

	created, err := service.CreateAccessKey(ctx, "user-42", "ci pipeline")
	if err != nil {
		t.Fatalf("CreateAccessKey failed: %v", err)
	}
	if !accessKeyIDPattern.MatchString(created.AccessKeyID) {
		t.Errorf("unexpected access key id: %s", created.AccessKeyID)
	}
	if len(created.Secret) != 43 {
		t.Errorf("expected 43-char secret, got %d", len(created.Secret))
	}

	md, err := service.GetAccessKey(ctx, created.AccessKeyID)
	if err != nil {
		t.Fatalf("GetAccessKey failed: %v", err)
	}
	if md.OwnerID != "user-42" || md.Description != "ci pipeline" || md.Status != domain.AccessKeyStatusActive {
		t.Errorf("unexpected metadata: %+v", md)
	}
	if md.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}

	if err := service.VerifySecret(ctx, created.AccessKeyID, created.Secret); err != nil {
		t.Errorf("VerifySecret failed: %v", err)
	}

	if err := service.RevokeAccessKey(ctx, created.AccessKeyID); err != nil {
		t.Fatalf("RevokeAccessKey failed: %v", err)
	}
	md, err = service.GetAccessKey(ctx, created.AccessKeyID)
	if err != nil {
		t.Fatalf("GetAccessKey failed: %v", err)
	}
	if md.Status != domain.AccessKeyStatusRevoked {
		t.Errorf("expected REVOKED, got %s", md.Status)
	}
}

func TestAccessKeyService_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := newMockAccessKeyRepository()
	service := newTestService(t, repo, newTestRegistry(t), keygen.NewGenerator())

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := service.CreateAccessKey(ctx, "user-42", "")
			if err != nil {
				errs <- err
				return
			}
			ids <- created.AccessKeyID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("CreateAccessKey failed: %v", err)
	}
	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate access key id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d keys, got %d", n, len(seen))
	}
}
