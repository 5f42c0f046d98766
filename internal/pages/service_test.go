package pages

import (
	"context"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/fable/internal/apperr"
)

func TestCreateOwnerPageApprovedImmediately(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	page, err := service.Create(context.Background(), "work-1", "owner-1", "This is the first page of my novel.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page.Status != StatusApproved {
		t.Fatalf("expected approved status, got %s", page.Page.Status)
	}
	if page.Page.PageNumber == nil || *page.Page.PageNumber != 1 {
		t.Fatalf("expected page number 1, got %v", page.Page.PageNumber)
	}
	if page.Page.ApprovedAt == nil {
		t.Fatalf("expected approval timestamp")
	}
	if page.Author.Username != "testuser" {
		t.Fatalf("expected joined author profile, got %q", page.Author.Username)
	}
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	for expected := 1; expected <= 3; expected++ {
		page, err := service.Create(context.Background(), "work-1", "owner-1", "Page")
		if err != nil {
			t.Fatalf("unexpected error on page %d: %v", expected, err)
		}
		if *page.Page.PageNumber != expected {
			t.Fatalf("expected number %d, got %d", expected, *page.Page.PageNumber)
		}
	}
}

func TestCreateNonOwnerLandsInPendingQueue(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	page, err := service.Create(context.Background(), "work-1", "user-2", "I am contributing to this story.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", page.Page.Status)
	}
	if page.Page.PageNumber != nil {
		t.Fatalf("pending page must not hold a number, got %d", *page.Page.PageNumber)
	}
	if page.Page.ApprovedAt != nil {
		t.Fatalf("pending page must not carry an approval timestamp")
	}
}

func TestCreateAuthorizationAndValidation(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	tests := []struct {
		name         string
		workID       string
		authorID     string
		content      string
		expectedKind apperr.Kind
		messagePart  string
	}{
		{
			name:         "missing work",
			workID:       "missing",
			authorID:     "owner-1",
			content:      "Content",
			expectedKind: apperr.KindNotFound,
			messagePart:  "Work not found",
		},
		{
			name:         "collaboration disabled",
			workID:       "work-1",
			authorID:     "user-2",
			content:      "Content",
			expectedKind: apperr.KindForbidden,
			messagePart:  "does not allow contributions",
		},
		{
			name:         "content over limit",
			workID:       "work-1",
			authorID:     "owner-1",
			content:      strings.Repeat("a", 501),
			expectedKind: apperr.KindBadRequest,
			messagePart:  "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(context.Background(), tt.workID, tt.authorID, tt.content)
			domainErr := assertDomainError(t, err, tt.expectedKind)
			if !strings.Contains(domainErr.Message(), tt.messagePart) {
				t.Fatalf("expected message to contain %q, got %q", tt.messagePart, domainErr.Message())
			}
		})
	}
}

func TestCreateAcceptsContentAtExactLimit(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	if _, err := service.Create(context.Background(), "work-1", "owner-1", strings.Repeat("a", 500)); err != nil {
		t.Fatalf("content at the limit should be accepted: %v", err)
	}
}

func TestFindAllReturnsOnlyApprovedInReadingOrder(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	for _, content := range []string{"Page 1", "Page 2"} {
		if _, err := service.Create(context.Background(), "work-1", "owner-1", content); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := service.Create(context.Background(), "work-1", "user-2", "Pending page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := service.FindAll(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 approved pages, got %d", len(rows))
	}
	for index, row := range rows {
		if row.Page.Status != StatusApproved {
			t.Fatalf("pending page leaked into public listing")
		}
		if *row.Page.PageNumber != index+1 {
			t.Fatalf("expected number %d at position %d, got %d", index+1, index, *row.Page.PageNumber)
		}
	}
}

func TestFindAllEmptyWorkYieldsEmptyList(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	rows, err := service.FindAll(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty list, got %d rows", len(rows))
	}
}

func TestFindOneExcludesPendingAndMissingNumbers(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	if _, err := service.Create(context.Background(), "work-1", "user-2", "Pending page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The only page is pending, so number 1 must not resolve.
	_, err := service.FindOne(context.Background(), "work-1", 1)
	assertDomainError(t, err, apperr.KindNotFound)

	if _, err := service.Create(context.Background(), "work-1", "owner-1", "Page 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := service.FindOne(context.Background(), "work-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page.Content != "Page 1" {
		t.Fatalf("expected approved page content, got %q", page.Page.Content)
	}

	_, err = service.FindOne(context.Background(), "work-1", 999)
	assertDomainError(t, err, apperr.KindNotFound)
}

func TestUpdateRewritesContentOnly(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	created, err := service.Create(context.Background(), "work-1", "owner-1", "Original content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := service.Update(context.Background(), created.Page.ID, "owner-1", "Updated content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Page.Content != "Updated content" {
		t.Fatalf("expected updated content, got %q", updated.Page.Content)
	}
	if *updated.Page.PageNumber != 1 || updated.Page.Status != StatusApproved {
		t.Fatalf("update must not touch number or status")
	}
}

func TestUpdatePreconditions(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 500)

	approved, err := service.Create(context.Background(), "work-1", "owner-1", "Approved page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending, err := service.Create(context.Background(), "work-1", "user-2", "Pending page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name         string
		pageID       string
		actingUserID string
		content      string
		expectedKind apperr.Kind
	}{
		{"missing page", "missing", "owner-1", "x", apperr.KindNotFound},
		{"pending page", pending.Page.ID, "user-2", "x", apperr.KindForbidden},
		{"not the author", approved.Page.ID, "user-2", "x", apperr.KindForbidden},
		{"over limit", approved.Page.ID, "owner-1", strings.Repeat("a", 501), apperr.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Update(context.Background(), tt.pageID, tt.actingUserID, tt.content)
			assertDomainError(t, err, tt.expectedKind)
		})
	}
}

func TestRemoveRenumbersSubsequentPages(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	var middlePageID string
	for _, content := range []string{"Page 1", "Page 2", "Page 3"} {
		page, err := service.Create(context.Background(), "work-1", "owner-1", content)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if content == "Page 2" {
			middlePageID = page.Page.ID
		}
	}

	if err := service.Remove(context.Background(), middlePageID, "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := service.FindAll(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 remaining pages, got %d", len(rows))
	}
	if *rows[0].Page.PageNumber != 1 || rows[0].Page.Content != "Page 1" {
		t.Fatalf("unexpected first page: %d %q", *rows[0].Page.PageNumber, rows[0].Page.Content)
	}
	if *rows[1].Page.PageNumber != 2 || rows[1].Page.Content != "Page 3" {
		t.Fatalf("expected former page 3 to move to number 2, got %d %q", *rows[1].Page.PageNumber, rows[1].Page.Content)
	}
}

func TestRemoveKeepsSequenceDenseAcrossMixedOperations(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		page, err := service.Create(context.Background(), "work-1", "owner-1", "Content")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, page.Page.ID)
	}

	// Delete the first and the (renumbered) last, then append again.
	if err := service.Remove(context.Background(), ids[0], "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Remove(context.Background(), ids[4], "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Create(context.Background(), "work-1", "owner-1", "Appended"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	numbers := approvedNumbers(t, service, "work-1")
	for index, number := range numbers {
		if number != index+1 {
			t.Fatalf("sequence not dense: %v", numbers)
		}
	}
	if len(numbers) != 4 {
		t.Fatalf("expected 4 approved pages, got %d", len(numbers))
	}
}

func TestRemovePreconditions(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 500)

	approved, err := service.Create(context.Background(), "work-1", "owner-1", "Approved page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending, err := service.Create(context.Background(), "work-1", "user-2", "Pending page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name         string
		pageID       string
		actingUserID string
		expectedKind apperr.Kind
	}{
		{"missing page", "missing", "owner-1", apperr.KindNotFound},
		{"pending page", pending.Page.ID, "user-2", apperr.KindForbidden},
		{"not the author", approved.Page.ID, "user-2", apperr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Remove(context.Background(), tt.pageID, tt.actingUserID)
			assertDomainError(t, err, tt.expectedKind)
		})
	}
}

func TestGetPendingContributionsOldestFirst(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	for _, content := range []string{"Pending contribution 1", "Pending contribution 2"} {
		if _, err := service.Create(context.Background(), "work-1", "user-2", content); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	rows, err := service.GetPendingContributions(context.Background(), "work-1", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(rows))
	}
	if rows[0].Page.Content != "Pending contribution 1" {
		t.Fatalf("expected oldest contribution first, got %q", rows[0].Page.Content)
	}
	if rows[0].Author.Username != "anotheruser" {
		t.Fatalf("expected joined author profile")
	}

	_, err = service.GetPendingContributions(context.Background(), "work-1", "user-2")
	assertDomainError(t, err, apperr.KindForbidden)

	_, err = service.GetPendingContributions(context.Background(), "missing", "owner-1")
	assertDomainError(t, err, apperr.KindNotFound)
}

func TestApproveContributionAssignsNextNumber(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	if _, err := service.Create(context.Background(), "work-1", "owner-1", "Owner page 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending, err := service.Create(context.Background(), "work-1", "user-2", "Pending contribution to approve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	approved, err := service.ApproveContribution(context.Background(), pending.Page.ID, "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Page.Status != StatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Page.Status)
	}
	if approved.Page.PageNumber == nil || *approved.Page.PageNumber != 2 {
		t.Fatalf("expected number 2, got %v", approved.Page.PageNumber)
	}
	if approved.Page.ApprovedAt == nil {
		t.Fatalf("expected approval timestamp")
	}

	// The page is now publicly visible under its number.
	found, err := service.FindOne(context.Background(), "work-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Page.ID != pending.Page.ID {
		t.Fatalf("expected approved contribution at number 2")
	}
}

func TestApproveContributionPreconditions(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	pending, err := service.Create(context.Background(), "work-1", "user-2", "Pending contribution")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.ApproveContribution(context.Background(), "missing", "owner-1")
	assertDomainError(t, err, apperr.KindNotFound)

	_, err = service.ApproveContribution(context.Background(), pending.Page.ID, "user-2")
	domainErr := assertDomainError(t, err, apperr.KindForbidden)
	if !strings.Contains(domainErr.Message(), "Only the work owner") {
		t.Fatalf("unexpected message %q", domainErr.Message())
	}

	if _, err := service.ApproveContribution(context.Background(), pending.Page.ID, "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second approval must fail: the page is no longer pending.
	_, err = service.ApproveContribution(context.Background(), pending.Page.ID, "owner-1")
	domainErr = assertDomainError(t, err, apperr.KindBadRequest)
	if !strings.Contains(domainErr.Message(), "not pending") {
		t.Fatalf("unexpected message %q", domainErr.Message())
	}
}

func TestRejectContributionDeletesPermanently(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	pending, err := service.Create(context.Background(), "work-1", "user-2", "Pending contribution to reject")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = service.RejectContribution(context.Background(), pending.Page.ID, "user-2")
	assertDomainError(t, err, apperr.KindForbidden)

	if err := service.RejectContribution(context.Background(), pending.Page.ID, "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	if err := db.Model(&Page{}).Where("id = ?", pending.Page.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count pages: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected contribution must be deleted")
	}

	err = service.RejectContribution(context.Background(), pending.Page.ID, "owner-1")
	assertDomainError(t, err, apperr.KindNotFound)
}

func TestRejectApprovedPageIsBadRequest(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedWork(t, db, "work-1", "owner-1", false, 500)

	page, err := service.Create(context.Background(), "work-1", "owner-1", "Approved page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = service.RejectContribution(context.Background(), page.Page.ID, "owner-1")
	domainErr := assertDomainError(t, err, apperr.KindBadRequest)
	if !strings.Contains(domainErr.Message(), "not pending") {
		t.Fatalf("unexpected message %q", domainErr.Message())
	}
}

func TestGetCollaboratorsRanksByCountThenUsername(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedUser(t, db, "user-3", "charlie")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	for _, authorID := range []string{"owner-1", "user-2", "user-3"} {
		page, err := service.Create(context.Background(), "work-1", authorID, "Page by "+authorID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Page.Status == StatusPending {
			if _, err := service.ApproveContribution(context.Background(), page.Page.ID, "owner-1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}

	contributors, err := service.GetCollaborators(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// All counts equal, so usernames decide the order.
	expected := []string{"anotheruser", "charlie", "testuser"}
	if len(contributors) != len(expected) {
		t.Fatalf("expected %d contributors, got %d", len(expected), len(contributors))
	}
	for index, username := range expected {
		if contributors[index].Username != username {
			t.Fatalf("expected %q at position %d, got %q", username, index, contributors[index].Username)
		}
		if contributors[index].PageCount != 1 {
			t.Fatalf("expected page count 1 for %q", username)
		}
	}
}

func TestGetCollaboratorsCountsOnlyApprovedPages(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	if _, err := service.Create(context.Background(), "work-1", "owner-1", "Approved page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Create(context.Background(), "work-1", "user-2", "Pending page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contributors, err := service.GetCollaborators(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contributors) != 1 {
		t.Fatalf("expected 1 contributor, got %d", len(contributors))
	}
	if contributors[0].Username != "testuser" || contributors[0].PageCount != 1 {
		t.Fatalf("unexpected contributor row: %+v", contributors[0])
	}

	_, err = service.GetCollaborators(context.Background(), "missing")
	assertDomainError(t, err, apperr.KindNotFound)
}

func TestGetCollaboratorsOrdersByDescendingCount(t *testing.T) {
	service, db := newTestLedger(t)
	seedUser(t, db, "owner-1", "testuser")
	seedUser(t, db, "user-2", "anotheruser")
	seedWork(t, db, "work-1", "owner-1", true, 1000)

	for i := 0; i < 2; i++ {
		if _, err := service.Create(context.Background(), "work-1", "owner-1", "Owner page"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	pending, err := service.Create(context.Background(), "work-1", "user-2", "Collaborator page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.ApproveContribution(context.Background(), pending.Page.ID, "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contributors, err := service.GetCollaborators(context.Background(), "work-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contributors) != 2 {
		t.Fatalf("expected 2 contributors, got %d", len(contributors))
	}
	if contributors[0].Username != "testuser" || contributors[0].PageCount != 2 {
		t.Fatalf("expected testuser first with 2 pages, got %+v", contributors[0])
	}
	if contributors[1].Username != "anotheruser" || contributors[1].PageCount != 1 {
		t.Fatalf("expected anotheruser second with 1 page, got %+v", contributors[1])
	}
}
