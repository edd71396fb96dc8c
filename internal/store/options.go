package store

import (
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type WorkflowQueryFilter BaseQuerier

func NewWorkflowQueryFilter() *WorkflowQueryFilter {
	return &WorkflowQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *WorkflowQueryFilter) ByFileID(fileID string) *WorkflowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("file_id = ?", fileID)
	})
	return qf
}

func (qf *WorkflowQueryFilter) ByFinalStatus(status string) *WorkflowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("final_status = ?", status)
	})
	return qf
}

// Pagination selects the slice [(page-1)*size, page*size) of the sorted
// result set. Page is 1-based; the slicing happens client side after the
// full scan.
type Pagination struct {
	Page int
	Size int
}
