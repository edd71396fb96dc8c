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
	headerTable = "file_headers_spec"

	insertHeaderStm = "INSERT INTO %s (id, process_stage, file_status, created_date) VALUES ('%s', '%s', '', '%s');"
)

var _ = Describe("file header store", Ordered, func() {
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
		Expect(s.FileHeader().CreateTable(context.TODO(), headerTable)).To(BeNil())
	})

	AfterAll(func() {
		if gormdb != nil {
			gormdb.Exec("DROP TABLE IF EXISTS " + headerTable + ";")
			s.Close()
		}
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM " + headerTable + ";")
	})

	Context("create", func() {
		It("defaults a new header to UNPROCESSED", func() {
			id := uuid.NewString()
			Expect(s.FileHeader().Create(context.TODO(), headerTable, &model.FileHeader{ID: id})).To(BeNil())

			found, err := s.FileHeader().Get(context.TODO(), headerTable, id)
			Expect(err).To(BeNil())
			Expect(found.ProcessStage).To(Equal(model.StageUnprocessed))
			Expect(found.CreatedDate).NotTo(BeEmpty())
		})
	})

	Context("oldest processing", func() {
		It("returns the PROCESSING header with the earliest created_date", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertHeaderStm, headerTable, "f-new", model.StageProcessing, "2024-06-01T00:00:00Z"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertHeaderStm, headerTable, "f-old", model.StageProcessing, "2024-01-01T00:00:00Z"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertHeaderStm, headerTable, "f-done", model.StageComplete, "2023-01-01T00:00:00Z"))
			Expect(tx.Error).To(BeNil())

			header, err := s.FileHeader().OldestProcessing(context.TODO(), headerTable)
			Expect(err).To(BeNil())
			Expect(header.ID).To(Equal("f-old"))
		})

		It("returns not found when nothing is processing", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertHeaderStm, headerTable, "f-done", model.StageComplete, "2024-01-01T00:00:00Z"))
			Expect(tx.Error).To(BeNil())

			_, err := s.FileHeader().OldestProcessing(context.TODO(), headerTable)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("complete", func() {
		It("promotes the header and records the file status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertHeaderStm, headerTable, "f-1", model.StageProcessing, "2024-01-01T00:00:00Z"))
			Expect(tx.Error).To(BeNil())

			Expect(s.FileHeader().Complete(context.TODO(), headerTable, "f-1", model.FileStatusFail)).To(BeNil())

			found, err := s.FileHeader().Get(context.TODO(), headerTable, "f-1")
			Expect(err).To(BeNil())
			Expect(found.ProcessStage).To(Equal(model.StageComplete))
			Expect(found.FileStatus).To(Equal(model.FileStatusFail))
			Expect(found.UpdatedDate).NotTo(BeEmpty())
		})

		It("returns not found for a vanished header", func() {
			err := s.FileHeader().Complete(context.TODO(), headerTable, uuid.NewString(), model.FileStatusSuccess)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})
})
