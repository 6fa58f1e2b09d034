package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sync"

	"golang.org/x/sync/semaphore"

	"lender_directory/internal/domain"
)

const defaultContentType = "application/pdf"

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// AttachmentManager writes criteria sheets as blob + metadata row and keeps
// the owning lender's cached sheets in step with the store.
type AttachmentManager struct {
	repo *LenderRepository
}

// Attach uploads doc for an existing lender. If the metadata insert fails the
// uploaded blob is deleted again and the cached sheets are left untouched.
func (m *AttachmentManager) Attach(ctx context.Context, lenderID string, doc domain.Document) (domain.CriteriaSheet, error) {
	r := m.repo
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if len(doc.Data) == 0 {
		return domain.CriteriaSheet{}, fmt.Errorf("%w: document %q is empty", domain.ErrValidation, doc.FileName)
	}
	if err := r.exists(ctx, lenderID); err != nil {
		return domain.CriteriaSheet{}, err
	}

	sheet, err := m.upload(ctx, lenderID, doc)
	if err != nil {
		return domain.CriteriaSheet{}, err
	}

	if _, cached := r.GetByID(lenderID); !cached {
		// written by another process since the last refresh
		if l, err := r.fetchOne(ctx, lenderID); err == nil {
			r.splice(l)
		} else {
			r.rep.ReportPartial("attach.refresh", lenderID, err)
		}
		return sheet, nil
	}

	sheets, err := r.fetchSheets(ctx, lenderID)
	if err != nil {
		// Row and blob exist; splice what we inserted.
		r.rep.ReportPartial("attach.refresh", lenderID, err)
		cur, _ := r.GetByID(lenderID)
		sheets = append(cur.CriteriaSheets, sheet)
	}
	r.setSheets(lenderID, sheets)
	return sheet, nil
}

// Detach removes the sheet row and, best effort, its blob.
func (m *AttachmentManager) Detach(ctx context.Context, lenderID, sheetID string) error {
	r := m.repo
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	rows, err := r.store.Select(ctx, domain.TableCriteriaSheets, domain.Query{
		Where: []domain.Eq{{Column: "id", Value: sheetID}},
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("get sheet %s: %w", sheetID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("sheet %s: %w", sheetID, domain.ErrNotFound)
	}
	sheet := sheetFromRow(rows[0])
	if sheet.LenderID != lenderID {
		return fmt.Errorf("sheet %s of lender %s: %w", sheetID, lenderID, domain.ErrNotFound)
	}

	if key := blobKey(sheet.URL); key != "" {
		if err := r.blobs.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.rep.ReportPartial("detach.blob", sheetID, err)
		}
	}

	n, err := r.store.Delete(ctx, domain.TableCriteriaSheets, domain.Eq{Column: "id", Value: sheetID})
	if err != nil {
		return fmt.Errorf("delete sheet %s: %w", sheetID, err)
	}
	if n == 0 {
		return fmt.Errorf("sheet %s: %w", sheetID, domain.ErrNotFound)
	}

	cur, ok := r.GetByID(lenderID)
	if !ok {
		return nil
	}
	kept := make([]domain.CriteriaSheet, 0, len(cur.CriteriaSheets))
	for _, s := range cur.CriteriaSheets {
		if s.ID != sheetID {
			kept = append(kept, s)
		}
	}
	r.setSheets(lenderID, kept)
	return nil
}

// upload is the blob -> metadata row sequence with its compensating delete.
func (m *AttachmentManager) upload(ctx context.Context, lenderID string, doc domain.Document) (domain.CriteriaSheet, error) {
	r := m.repo
	key := BlobName(r.cfg.IDs.NewID(), doc.FileName)
	ct := doc.ContentType
	if ct == "" {
		ct = defaultContentType
	}

	if _, err := r.blobs.Upload(ctx, key, doc.Data, ct); err != nil {
		return domain.CriteriaSheet{}, fmt.Errorf("upload %s: %w", key, err)
	}
	publicURL := r.blobs.PublicURL(key)
	if publicURL == "" {
		return domain.CriteriaSheet{}, m.rollback(ctx, lenderID, key, errors.New("blob store returned no public url"))
	}

	name := doc.Name
	if name == "" {
		name = doc.FileName
	}
	row := domain.Row{
		"lender_id":   lenderID,
		"name":        name,
		"url":         publicURL,
		"upload_date": r.cfg.Clock.Now(),
	}
	inserted, err := r.store.Insert(ctx, domain.TableCriteriaSheets, row)
	if err != nil {
		return domain.CriteriaSheet{}, m.rollback(ctx, lenderID, key, err)
	}

	for k, v := range row {
		if _, ok := inserted[k]; !ok {
			inserted[k] = v
		}
	}
	return sheetFromRow(inserted), nil
}

func (m *AttachmentManager) rollback(ctx context.Context, lenderID, key string, cause error) error {
	r := m.repo
	if derr := r.blobs.Delete(ctx, key); derr != nil && !errors.Is(derr, domain.ErrNotFound) {
		r.rep.ReportPartial("attach.rollback", lenderID, derr)
		return fmt.Errorf("%w: metadata for %s not stored (%w) and blob left behind: %v",
			domain.ErrPartialFailure, key, cause, derr)
	}
	return fmt.Errorf("%w: metadata for %s not stored, blob removed: %w", domain.ErrPartialFailure, key, cause)
}

// uploadAll attaches docs concurrently and returns one error per failed doc.
// Docs without content are skipped.
func (m *AttachmentManager) uploadAll(ctx context.Context, lenderID string, docs []domain.Document) []error {
	if countAttachable(docs) == 0 {
		return nil
	}
	r := m.repo
	sem := semaphore.NewWeighted(int64(r.cfg.FetchConcurrency))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(d domain.Document, err error) {
		r.rep.ReportPartial("attach", lenderID, err)
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", d.FileName, err))
		mu.Unlock()
	}

	for _, d := range docs {
		if len(d.Data) == 0 {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(d, err)
			continue
		}
		wg.Add(1)
		go func(d domain.Document) {
			defer wg.Done()
			defer sem.Release(1)
			if _, err := m.upload(ctx, lenderID, d); err != nil {
				fail(d, err)
			}
		}(d)
	}

	wg.Wait()
	return errs
}

func countAttachable(docs []domain.Document) int {
	n := 0
	for _, d := range docs {
		if len(d.Data) > 0 {
			n++
		}
	}
	return n
}

// BlobName derives a collision-resistant object name from a fresh id and the
// original file name.
func BlobName(id, fileName string) string {
	return id + "-" + unsafeFileChars.ReplaceAllString(fileName, "_")
}

// blobKey recovers the object name from a public URL (its last path segment).
func blobKey(ref string) string {
	if ref == "" {
		return ""
	}
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}
