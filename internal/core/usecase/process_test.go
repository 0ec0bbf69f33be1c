package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/docstack/internal/core/domain"
)

type stageCall struct {
	stage    domain.ProcessingStage
	progress int
}

type processRepoFake struct {
	doc       *domain.Document
	getErr    error
	claimLost bool
	claimErr  error

	foldersErr error

	stageCalls    []stageCall
	progressCalls []int
	folder        string
	folderErr     error
	readyCalls    int
	readyChunks   int
	readyTextLen  int
	failedCalls   int
	failedMsg     string
	progressErr   error
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error {
	return errors.New("not implemented")
}

func (f *processRepoFake) GetByID(context.Context, string, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) List(context.Context, string) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *processRepoFake) ListFolders(context.Context, string) ([]string, error) {
	if f.foldersErr != nil {
		return nil, f.foldersErr
	}
	return []string{"Work"}, nil
}

func (f *processRepoFake) ClaimForProcessing(context.Context, string, string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	return !f.claimLost, nil
}

func (f *processRepoFake) UpdateStage(_ context.Context, _, _ string, stage domain.ProcessingStage, progress int) error {
	f.stageCalls = append(f.stageCalls, stageCall{stage: stage, progress: progress})
	return nil
}

func (f *processRepoFake) UpdateProgress(_ context.Context, _, _ string, progress int) error {
	if f.progressErr != nil {
		return f.progressErr
	}
	f.progressCalls = append(f.progressCalls, progress)
	return nil
}

func (f *processRepoFake) SetFolder(_ context.Context, _, _, folder string) error {
	if f.folderErr != nil {
		return f.folderErr
	}
	f.folder = folder
	return nil
}

func (f *processRepoFake) MarkReady(_ context.Context, _, _ string, chunkCount, textLength int) error {
	f.readyCalls++
	f.readyChunks = chunkCount
	f.readyTextLen = textLength
	return nil
}

func (f *processRepoFake) MarkFailed(_ context.Context, _, _, message string) error {
	f.failedCalls++
	f.failedMsg = message
	return nil
}

func (f *processRepoFake) ResetForRetry(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *processRepoFake) Delete(context.Context, string, string) error {
	return errors.New("not implemented")
}

type chunkStoreFake struct {
	ops       []string
	batches   [][]domain.Chunk
	insertErr error
	deleteErr error
}

func (f *chunkStoreFake) InsertBatch(_ context.Context, chunks []domain.Chunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.ops = append(f.ops, "insert")
	batch := make([]domain.Chunk, len(chunks))
	copy(batch, chunks)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *chunkStoreFake) DeleteByDocument(context.Context, string, string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, "delete")
	return nil
}

func (f *chunkStoreFake) CountByDocument(context.Context, string, string) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *chunkStoreFake) SearchSimilar(context.Context, string, []float32, float64, int) ([]domain.ScoredChunk, error) {
	return nil, errors.New("not implemented")
}

type storageFake struct {
	content string
	openErr error
	opens   int
	saved   map[string]string
	removed []string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[key] = string(b)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type extractorFake struct {
	text     string
	err      error
	gotData  []byte
	dataSeen bool
}

func (f *extractorFake) Extract(_ context.Context, _ *domain.Document, data []byte) (string, error) {
	f.gotData = data
	f.dataSeen = true
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type classifierFake struct {
	label   string
	err     error
	sample  string
	folders []string
}

func (f *classifierFake) Classify(_ context.Context, in domain.ClassifyInput) (string, error) {
	f.sample = in.Sample
	f.folders = in.ExistingFolders
	if f.err != nil {
		return "", f.err
	}
	return f.label, nil
}

type chunkerFake struct {
	parts []string
	got   string
}

func (f *chunkerFake) Split(text string) []string {
	f.got = text
	return f.parts
}

type embedderFake struct {
	err     error
	short   bool
	batches [][]string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	batch := make([]string, len(texts))
	copy(batch, texts)
	f.batches = append(f.batches, batch)
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func pendingDoc() *domain.Document {
	return &domain.Document{
		ID:          "doc-1",
		UserID:      "user-1",
		FileName:    "report.pdf",
		MimeType:    "application/pdf",
		Source:      domain.SourceFile,
		StoragePath: "doc-1_report.pdf",
		Status:      domain.StatusProcessing,
		Stage:       domain.StagePending,
	}
}

func newProcessFixture(repo *processRepoFake, chunks *chunkStoreFake, storage *storageFake, extractor *extractorFake, classifier *classifierFake, chunker *chunkerFake, embedder *embedderFake) *ProcessDocumentUseCase {
	return NewProcessDocumentUseCase(ProcessConfig{}, repo, chunks, storage, extractor, classifier, chunker, embedder)
}

func TestProcessJobHappyPath(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	chunks := &chunkStoreFake{}
	storage := &storageFake{content: "raw payload"}
	extractor := &extractorFake{text: "extracted body text"}
	classifier := &classifierFake{label: "Work"}
	chunker := &chunkerFake{parts: []string{"part one", "part two"}}
	embedder := &embedderFake{}

	uc := newProcessFixture(repo, chunks, storage, extractor, classifier, chunker, embedder)

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed outcome, got %s", outcome)
	}

	if string(extractor.gotData) != "raw payload" {
		t.Fatalf("extractor got payload %q", extractor.gotData)
	}
	if repo.folder != "Work" {
		t.Fatalf("expected folder Work, got %q", repo.folder)
	}

	want := []stageCall{
		{stage: domain.StageChunking, progress: domain.ProgressChunking},
		{stage: domain.StageEmbedding, progress: domain.ProgressEmbedding},
	}
	if len(repo.stageCalls) != len(want) {
		t.Fatalf("expected %d stage calls, got %+v", len(want), repo.stageCalls)
	}
	for i, call := range want {
		if repo.stageCalls[i] != call {
			t.Fatalf("stage call %d = %+v, want %+v", i, repo.stageCalls[i], call)
		}
	}

	if repo.readyCalls != 1 || repo.readyChunks != 2 {
		t.Fatalf("expected ready with 2 chunks, got calls=%d chunks=%d", repo.readyCalls, repo.readyChunks)
	}
	if repo.readyTextLen != len("extracted body text") {
		t.Fatalf("expected text length %d, got %d", len("extracted body text"), repo.readyTextLen)
	}
	if repo.failedCalls != 0 {
		t.Fatalf("unexpected failure mark: %q", repo.failedMsg)
	}
}

func TestProcessJobClearsOldChunksBeforeInserting(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	chunks := &chunkStoreFake{}
	uc := newProcessFixture(repo, chunks, &storageFake{content: "x"}, &extractorFake{text: "text"},
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	if _, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"}); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if len(chunks.ops) < 2 || chunks.ops[0] != "delete" || chunks.ops[1] != "insert" {
		t.Fatalf("expected delete before insert, got %v", chunks.ops)
	}
}

func TestProcessJobEmbedsInBatchesWithProgress(t *testing.T) {
	parts := make([]string, 11)
	for i := range parts {
		parts[i] = "chunk"
	}
	repo := &processRepoFake{doc: pendingDoc()}
	chunks := &chunkStoreFake{}
	embedder := &embedderFake{}
	uc := newProcessFixture(repo, chunks, &storageFake{content: "x"}, &extractorFake{text: "text"},
		&classifierFake{label: "Work"}, &chunkerFake{parts: parts}, embedder)

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}

	if len(embedder.batches) != 4 {
		t.Fatalf("expected 4 embed batches for 11 chunks, got %d", len(embedder.batches))
	}
	sizes := []int{3, 3, 3, 2}
	for i, batch := range embedder.batches {
		if len(batch) != sizes[i] {
			t.Fatalf("batch %d size = %d, want %d", i, len(batch), sizes[i])
		}
	}

	wantProgress := []int{50, 62, 74, 86}
	if len(repo.progressCalls) != len(wantProgress) {
		t.Fatalf("progress calls = %v, want %v", repo.progressCalls, wantProgress)
	}
	for i, p := range wantProgress {
		if repo.progressCalls[i] != p {
			t.Fatalf("progress calls = %v, want %v", repo.progressCalls, wantProgress)
		}
	}

	index := 0
	for _, batch := range chunks.batches {
		for _, row := range batch {
			if row.Index != index {
				t.Fatalf("chunk index = %d, want %d", row.Index, index)
			}
			if row.Metadata["file_name"] != "report.pdf" {
				t.Fatalf("chunk metadata missing file name: %+v", row.Metadata)
			}
			index++
		}
	}
	if index != 11 {
		t.Fatalf("expected 11 inserted chunks, got %d", index)
	}
	if repo.readyChunks != 11 {
		t.Fatalf("expected ready with 11 chunks, got %d", repo.readyChunks)
	}
}

func TestProcessJobSkipsWhenClaimLost(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc(), claimLost: true}
	extractor := &extractorFake{text: "text"}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{content: "x"}, extractor,
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeSkippedDuplicate {
		t.Fatalf("expected duplicate skip, got %s", outcome)
	}
	if extractor.dataSeen {
		t.Fatalf("extraction must not run for a lost claim")
	}
	if len(repo.stageCalls) != 0 {
		t.Fatalf("unexpected stage updates: %+v", repo.stageCalls)
	}
}

func TestProcessJobDropsJobForMissingDocument(t *testing.T) {
	repo := &processRepoFake{getErr: domain.WrapError(domain.ErrDocumentNotFound, "get document", nil)}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{}, &extractorFake{},
		&classifierFake{}, &chunkerFake{}, &embedderFake{})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "gone", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeDroppedMissing {
		t.Fatalf("expected dropped outcome, got %s", outcome)
	}
}

func TestProcessJobAbortsWhenDocumentDeletedMidRun(t *testing.T) {
	repo := &processRepoFake{
		doc:       pendingDoc(),
		folderErr: domain.WrapError(domain.ErrDocumentNotFound, "set folder", nil),
	}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{content: "x"}, &extractorFake{text: "text"},
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeAbortedDeleted {
		t.Fatalf("expected aborted outcome, got %s", outcome)
	}
	if repo.failedCalls != 0 {
		t.Fatalf("deleted document must not be marked failed, got %q", repo.failedMsg)
	}
	if repo.readyCalls != 0 {
		t.Fatalf("deleted document must not be marked ready")
	}
}

func TestProcessJobMarksFailedOnEmptyExtraction(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{content: "x"}, &extractorFake{text: "  \n\t "},
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome)
	}
	if !domain.IsKind(err, domain.ErrEmptyExtraction) {
		t.Fatalf("expected empty extraction kind, got %v", err)
	}
	if repo.failedCalls != 1 {
		t.Fatalf("expected one failure mark, got %d", repo.failedCalls)
	}
	if repo.failedMsg != "The file may be empty or corrupted." {
		t.Fatalf("unexpected stored message %q", repo.failedMsg)
	}
}

func TestProcessJobMarksFailedOnVectorCountMismatch(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{content: "x"}, &extractorFake{text: "text"},
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a", "b"}}, &embedderFake{short: true})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome)
	}
	if !domain.IsKind(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected embedding failure kind, got %v", err)
	}
}

func TestProcessJobClassifierFailureFallsBackToUncategorized(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	uc := newProcessFixture(repo, &chunkStoreFake{}, &storageFake{content: "x"}, &extractorFake{text: "text"},
		&classifierFake{err: errors.New("model offline")}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	outcome, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if outcome != domain.OutcomeProcessed {
		t.Fatalf("classifier failure must not fail the run, got %s", outcome)
	}
	if repo.folder != domain.FolderUncategorized {
		t.Fatalf("expected fallback folder, got %q", repo.folder)
	}
}

func TestProcessJobTruncatesOversizedText(t *testing.T) {
	repo := &processRepoFake{doc: pendingDoc()}
	chunker := &chunkerFake{parts: []string{"a"}}
	classifier := &classifierFake{label: "Work"}
	uc := NewProcessDocumentUseCase(
		ProcessConfig{MaxDocumentChars: 10, ClassifySampleChars: 4},
		repo, &chunkStoreFake{}, &storageFake{content: "x"},
		&extractorFake{text: "0123456789ABCDEF"}, classifier, chunker, &embedderFake{},
	)

	if _, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"}); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if chunker.got != "0123456789" {
		t.Fatalf("chunker received %q, want truncated text", chunker.got)
	}
	if classifier.sample != "0123" {
		t.Fatalf("classifier sample = %q, want 4-char sample", classifier.sample)
	}
}

func TestProcessJobURLSourceSkipsObjectStorage(t *testing.T) {
	doc := pendingDoc()
	doc.Source = domain.SourceURL
	doc.StoragePath = "https://example.com/page"
	repo := &processRepoFake{doc: doc}
	storage := &storageFake{}
	extractor := &extractorFake{text: "page text"}
	uc := newProcessFixture(repo, &chunkStoreFake{}, storage, extractor,
		&classifierFake{label: "Work"}, &chunkerFake{parts: []string{"a"}}, &embedderFake{})

	if _, err := uc.ProcessJob(context.Background(), domain.IngestJob{DocumentID: "doc-1", UserID: "user-1"}); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if storage.opens != 0 {
		t.Fatalf("url documents must not touch object storage, opens=%d", storage.opens)
	}
	if extractor.gotData != nil {
		t.Fatalf("url extraction receives no payload, got %d bytes", len(extractor.gotData))
	}
}
