package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/internal/store/model"
)

const (
	statusTable = "workflow_status_spec"

	insertWorkflowStm = "INSERT INTO %s (id, file_id, organization_id, domain_name, final_status, created_date) VALUES ('%s', '%s', 'org-1', 'billing', '%s', '2024-01-01T00:00:00Z');"
)

var _ = Describe("workflow store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		if err != nil {
			Skip(fmt.Sprintf("database not reachable: %v", err))
		}
		gormdb = db

		s = store.NewStore(db)
		Expect(s.Workflow().CreateTable(context.TODO(), statusTable)).To(BeNil())
	})

	AfterAll(func() {
		if gormdb != nil {
			gormdb.Exec("DROP TABLE IF EXISTS " + statusTable + ";")
			s.Close()
		}
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM " + statusTable + ";")
	})

	Context("create", func() {
		It("creates a record and reads it back by id", func() {
			id := uuid.NewString()
			record := &model.WorkflowRecord{
				ID:         id,
				FileID:     "file-1",
				DomainName: "billing",
			}
			Expect(s.Workflow().Create(context.TODO(), statusTable, record)).To(BeNil())
			Expect(record.CreatedDate).NotTo(BeEmpty())

			found, err := s.Workflow().GetByID(context.TODO(), statusTable, id)
			Expect(err).To(BeNil())
			Expect(found.FileID).To(Equal("file-1"))
			Expect(found.DomainName).To(Equal("billing"))
		})

		It("rejects a duplicate id", func() {
			id := uuid.NewString()
			Expect(s.Workflow().Create(context.TODO(), statusTable, &model.WorkflowRecord{ID: id})).To(BeNil())

			err := s.Workflow().Create(context.TODO(), statusTable, &model.WorkflowRecord{ID: id})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("get", func() {
		It("returns not found for an unknown id", func() {
			_, err := s.Workflow().GetByID(context.TODO(), statusTable, uuid.NewString())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("finds a record by file id", func() {
			id := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, id, "file-9", "success"))
			Expect(tx.Error).To(BeNil())

			found, err := s.Workflow().GetByFileID(context.TODO(), statusTable, "file-9")
			Expect(err).To(BeNil())
			Expect(found.ID).To(Equal(id))
		})
	})

	Context("update", func() {
		It("sets the final status without touching other fields", func() {
			id := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, id, "file-1", ""))
			Expect(tx.Error).To(BeNil())

			finalStatus := "success"
			err := s.Workflow().Update(context.TODO(), statusTable, id, store.UpdateFields{FinalStatus: &finalStatus})
			Expect(err).To(BeNil())

			found, err := s.Workflow().GetByID(context.TODO(), statusTable, id)
			Expect(err).To(BeNil())
			Expect(found.FinalStatus).To(Equal("success"))
			Expect(found.FileID).To(Equal("file-1"))
		})

		It("appends failed validations across consecutive updates", func() {
			id := uuid.NewString()
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, id, "file-1", ""))
			Expect(tx.Error).To(BeNil())

			err := s.Workflow().Update(context.TODO(), statusTable, id, store.UpdateFields{
				FailedValidations: []model.FailedValidation{{RuleName: "not_null", ColumnName: "amount", Status: "fail"}},
			})
			Expect(err).To(BeNil())

			err = s.Workflow().Update(context.TODO(), statusTable, id, store.UpdateFields{
				FailedValidations: []model.FailedValidation{{RuleName: "positive", ColumnName: "amount", Status: "fail"}},
			})
			Expect(err).To(BeNil())

			found, err := s.Workflow().GetByID(context.TODO(), statusTable, id)
			Expect(err).To(BeNil())
			validations := found.Validations()
			Expect(validations).To(HaveLen(2))
			Expect(validations[0].RuleName).To(Equal("not_null"))
			Expect(validations[1].RuleName).To(Equal("positive"))
		})

		It("returns not found when the record does not exist", func() {
			finalStatus := "success"
			err := s.Workflow().Update(context.TODO(), statusTable, uuid.NewString(), store.UpdateFields{FinalStatus: &finalStatus})
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("rejects a malformed table name", func() {
			finalStatus := "success"
			err := s.Workflow().Update(context.TODO(), "bad;name", uuid.NewString(), store.UpdateFields{FinalStatus: &finalStatus})
			Expect(err).To(MatchError(store.ErrInvalidTableName))
		})
	})

	Context("query", func() {
		It("pages through records sorted by id", func() {
			for i := 0; i < 5; i++ {
				tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, fmt.Sprintf("rec-%d", i), "file-1", "success"))
				Expect(tx.Error).To(BeNil())
			}

			records, total, err := s.Workflow().Query(context.TODO(), statusTable, nil, &store.Pagination{Page: 2, Size: 2})
			Expect(err).To(BeNil())
			Expect(total).To(Equal(5))
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal("rec-2"))
			Expect(records[1].ID).To(Equal("rec-3"))
		})

		It("returns an empty page past the end with the full count", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, uuid.NewString(), "file-1", "success"))
			Expect(tx.Error).To(BeNil())

			records, total, err := s.Workflow().Query(context.TODO(), statusTable, nil, &store.Pagination{Page: 5, Size: 10})
			Expect(err).To(BeNil())
			Expect(total).To(Equal(1))
			Expect(records).To(HaveLen(0))
		})

		It("filters by final status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-a", "file-1", "success"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-b", "file-1", "fail"))
			Expect(tx.Error).To(BeNil())

			filter := store.NewWorkflowQueryFilter().ByFinalStatus("fail")
			records, total, err := s.Workflow().Query(context.TODO(), statusTable, filter, nil)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(1))
			Expect(records[0].ID).To(Equal("rec-b"))
		})
	})

	Context("completion", func() {
		It("reports unfinished while any record has a blank final status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-a", "file-1", "success"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-b", "file-1", ""))
			Expect(tx.Error).To(BeNil())

			unfinished, err := s.Workflow().HasUnfinished(context.TODO(), statusTable, "file-1")
			Expect(err).To(BeNil())
			Expect(unfinished).To(BeTrue())

			finalStatus := "fail"
			Expect(s.Workflow().Update(context.TODO(), statusTable, "rec-b", store.UpdateFields{FinalStatus: &finalStatus})).To(BeNil())

			unfinished, err = s.Workflow().HasUnfinished(context.TODO(), statusTable, "file-1")
			Expect(err).To(BeNil())
			Expect(unfinished).To(BeFalse())
		})

		It("lists only the records of the requested file", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-a", "file-1", "success"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertWorkflowStm, statusTable, "rec-b", "file-2", "success"))
			Expect(tx.Error).To(BeNil())

			records, err := s.Workflow().ListByFileID(context.TODO(), statusTable, "file-1")
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("rec-a"))
		})
	})
})
