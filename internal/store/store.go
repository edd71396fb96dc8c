package store

import (
	"gorm.io/gorm"
)

type Store interface {
	Workflow() Workflow
	FileHeader() FileHeader
	AuditLog() AuditLog
	Close() error
}

type DataStore struct {
	db         *gorm.DB
	workflow   Workflow
	fileHeader FileHeader
	auditLog   AuditLog
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:         db,
		workflow:   NewWorkflowStore(db),
		fileHeader: NewFileHeaderStore(db),
		auditLog:   NewAuditLogStore(db),
	}
}

func (s *DataStore) Workflow() Workflow {
	return s.workflow
}

func (s *DataStore) FileHeader() FileHeader {
	return s.fileHeader
}

func (s *DataStore) AuditLog() AuditLog {
	return s.auditLog
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
