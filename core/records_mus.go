package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for persisted records. Field order is the wire order;
// append new fields at the end of a struct's serializer only.

var (
	IDMUS              = idMUS{}
	KnowledgeNodeMUS   = knowledgeNodeMUS{}
	KnowledgeEdgeMUS   = knowledgeEdgeMUS{}
	JobHistoryEntryMUS = jobHistoryEntryMUS{}
	PromptTemplateMUS  = promptTemplateMUS{}

	timeMUS         = unixMicroMUS{}
	durationMUS     = nanosMUS{}
	sourceTypeMUS   = stringMUS[SourceType]{}
	jobKindMUS      = stringMUS[JobKind]{}
	jobStatusMUS    = stringMUS[JobStatus]{}
	jobConfigMUS    = jobConfigSer{}
	stringSliceMUS  = ord.NewSliceSer[string](ord.String)
	float32SliceMUS = ord.NewSliceSer[float32](raw.Float32)
)

var (
	_ mus.Serializer[ID]              = IDMUS
	_ mus.Serializer[KnowledgeNode]   = KnowledgeNodeMUS
	_ mus.Serializer[KnowledgeEdge]   = KnowledgeEdgeMUS
	_ mus.Serializer[JobHistoryEntry] = JobHistoryEntryMUS
	_ mus.Serializer[PromptTemplate]  = PromptTemplateMUS
)

// reader threads the offset and first error through a sequence of field reads.
type reader struct {
	bs  []byte
	n   int
	err error
}

func read[T any](r *reader, ser mus.Serializer[T]) (v T) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = ser.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func skip[T any](r *reader, ser mus.Serializer[T]) {
	if r.err != nil {
		return
	}
	var n int
	n, r.err = ser.Skip(r.bs[r.n:])
	r.n += n
}

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int                { return varint.Uint64.Size(uint64(v)) }
func (idMUS) Skip(bs []byte) (int, error) { return varint.Uint64.Skip(bs) }

type stringMUS[T ~string] struct{}

func (stringMUS[T]) Marshal(v T, bs []byte) int { return ord.String.Marshal(string(v), bs) }

func (stringMUS[T]) Unmarshal(bs []byte) (T, int, error) {
	v, n, err := ord.String.Unmarshal(bs)
	return T(v), n, err
}

func (stringMUS[T]) Size(v T) int                { return ord.String.Size(string(v)) }
func (stringMUS[T]) Skip(bs []byte) (int, error) { return ord.String.Skip(bs) }

// unixMicroMUS stores times as Unix microseconds; the zero time is stored as 0.
type unixMicroMUS struct{}

func toMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func (unixMicroMUS) Marshal(v time.Time, bs []byte) int { return varint.Int64.Marshal(toMicro(v), bs) }

func (unixMicroMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || v == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func (unixMicroMUS) Size(v time.Time) int        { return varint.Int64.Size(toMicro(v)) }
func (unixMicroMUS) Skip(bs []byte) (int, error) { return varint.Int64.Skip(bs) }

type nanosMUS struct{}

func (nanosMUS) Marshal(v time.Duration, bs []byte) int { return varint.Int64.Marshal(int64(v), bs) }

func (nanosMUS) Unmarshal(bs []byte) (time.Duration, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return time.Duration(v), n, err
}

func (nanosMUS) Size(v time.Duration) int    { return varint.Int64.Size(int64(v)) }
func (nanosMUS) Skip(bs []byte) (int, error) { return varint.Int64.Skip(bs) }

type knowledgeNodeMUS struct{}

func (knowledgeNodeMUS) Marshal(v KnowledgeNode, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Summary, bs[n:])
	n += stringSliceMUS.Marshal(v.Tags, bs[n:])
	n += stringSliceMUS.Marshal(v.Topics, bs[n:])
	n += stringSliceMUS.Marshal(v.Entities, bs[n:])
	n += stringSliceMUS.Marshal(v.KeyPoints, bs[n:])
	n += sourceTypeMUS.Marshal(v.SourceType, bs[n:])
	n += ord.String.Marshal(v.SourceLocator, bs[n:])
	n += ord.Bool.Marshal(v.IsNew, bs[n:])
	n += raw.Float64.Marshal(v.Confidence, bs[n:])
	n += float32SliceMUS.Marshal(v.Vector, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (knowledgeNodeMUS) Unmarshal(bs []byte) (v KnowledgeNode, n int, err error) {
	r := &reader{bs: bs}
	v.Id = read[ID](r, IDMUS)
	v.Title = read[string](r, ord.String)
	v.Summary = read[string](r, ord.String)
	v.Tags = read[[]string](r, stringSliceMUS)
	v.Topics = read[[]string](r, stringSliceMUS)
	v.Entities = read[[]string](r, stringSliceMUS)
	v.KeyPoints = read[[]string](r, stringSliceMUS)
	v.SourceType = read[SourceType](r, sourceTypeMUS)
	v.SourceLocator = read[string](r, ord.String)
	v.IsNew = read[bool](r, ord.Bool)
	v.Confidence = read[float64](r, raw.Float64)
	v.Vector = read[[]float32](r, float32SliceMUS)
	v.CreatedAt = read[time.Time](r, timeMUS)
	v.UpdatedAt = read[time.Time](r, timeMUS)
	return v, r.n, r.err
}

func (knowledgeNodeMUS) Size(v KnowledgeNode) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.Summary)
	size += stringSliceMUS.Size(v.Tags)
	size += stringSliceMUS.Size(v.Topics)
	size += stringSliceMUS.Size(v.Entities)
	size += stringSliceMUS.Size(v.KeyPoints)
	size += sourceTypeMUS.Size(v.SourceType)
	size += ord.String.Size(v.SourceLocator)
	size += ord.Bool.Size(v.IsNew)
	size += raw.Float64.Size(v.Confidence)
	size += float32SliceMUS.Size(v.Vector)
	size += timeMUS.Size(v.CreatedAt)
	size += timeMUS.Size(v.UpdatedAt)
	return
}

func (s knowledgeNodeMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type knowledgeEdgeMUS struct{}

func (knowledgeEdgeMUS) Marshal(v KnowledgeEdge, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Source, bs)
	n += IDMUS.Marshal(v.Target, bs[n:])
	n += raw.Float64.Marshal(v.Weight, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (knowledgeEdgeMUS) Unmarshal(bs []byte) (v KnowledgeEdge, n int, err error) {
	r := &reader{bs: bs}
	v.Source = read[ID](r, IDMUS)
	v.Target = read[ID](r, IDMUS)
	v.Weight = read[float64](r, raw.Float64)
	v.UpdatedAt = read[time.Time](r, timeMUS)
	return v, r.n, r.err
}

func (knowledgeEdgeMUS) Size(v KnowledgeEdge) int {
	return IDMUS.Size(v.Source) + IDMUS.Size(v.Target) +
		raw.Float64.Size(v.Weight) + timeMUS.Size(v.UpdatedAt)
}

func (knowledgeEdgeMUS) Skip(bs []byte) (int, error) {
	r := &reader{bs: bs}
	skip[ID](r, IDMUS)
	skip[ID](r, IDMUS)
	skip[float64](r, raw.Float64)
	skip[time.Time](r, timeMUS)
	return r.n, r.err
}

type jobConfigSer struct{}

func (jobConfigSer) Marshal(v JobConfig, bs []byte) (n int) {
	n = varint.Int.Marshal(v.ConcurrencyLimit, bs)
	n += raw.Float64.Marshal(v.ErrorThreshold, bs[n:])
	n += ord.Bool.Marshal(v.AutoPause, bs[n:])
	return
}

func (jobConfigSer) Unmarshal(bs []byte) (v JobConfig, n int, err error) {
	r := &reader{bs: bs}
	v.ConcurrencyLimit = read[int](r, varint.Int)
	v.ErrorThreshold = read[float64](r, raw.Float64)
	v.AutoPause = read[bool](r, ord.Bool)
	return v, r.n, r.err
}

func (jobConfigSer) Size(v JobConfig) int {
	return varint.Int.Size(v.ConcurrencyLimit) + raw.Float64.Size(v.ErrorThreshold) + ord.Bool.Size(v.AutoPause)
}

func (s jobConfigSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type jobHistoryEntryMUS struct{}

func (jobHistoryEntryMUS) Marshal(v JobHistoryEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.JobId, bs)
	n += varint.Int.Marshal(v.Run, bs[n:])
	n += jobKindMUS.Marshal(v.Kind, bs[n:])
	n += varint.Int.Marshal(v.TotalItems, bs[n:])
	n += varint.Int.Marshal(v.SuccessfulItems, bs[n:])
	n += varint.Int.Marshal(v.FailedItems, bs[n:])
	n += timeMUS.Marshal(v.StartedAt, bs[n:])
	n += timeMUS.Marshal(v.EndedAt, bs[n:])
	n += durationMUS.Marshal(v.Duration, bs[n:])
	n += jobStatusMUS.Marshal(v.FinalStatus, bs[n:])
	n += raw.Float64.Marshal(v.ErrorRate, bs[n:])
	n += jobConfigMUS.Marshal(v.Config, bs[n:])
	return
}

func (jobHistoryEntryMUS) Unmarshal(bs []byte) (v JobHistoryEntry, n int, err error) {
	r := &reader{bs: bs}
	v.JobId = read[string](r, ord.String)
	v.Run = read[int](r, varint.Int)
	v.Kind = read[JobKind](r, jobKindMUS)
	v.TotalItems = read[int](r, varint.Int)
	v.SuccessfulItems = read[int](r, varint.Int)
	v.FailedItems = read[int](r, varint.Int)
	v.StartedAt = read[time.Time](r, timeMUS)
	v.EndedAt = read[time.Time](r, timeMUS)
	v.Duration = read[time.Duration](r, durationMUS)
	v.FinalStatus = read[JobStatus](r, jobStatusMUS)
	v.ErrorRate = read[float64](r, raw.Float64)
	v.Config = read[JobConfig](r, jobConfigMUS)
	return v, r.n, r.err
}

func (jobHistoryEntryMUS) Size(v JobHistoryEntry) (size int) {
	size = ord.String.Size(v.JobId)
	size += varint.Int.Size(v.Run)
	size += jobKindMUS.Size(v.Kind)
	size += varint.Int.Size(v.TotalItems)
	size += varint.Int.Size(v.SuccessfulItems)
	size += varint.Int.Size(v.FailedItems)
	size += timeMUS.Size(v.StartedAt)
	size += timeMUS.Size(v.EndedAt)
	size += durationMUS.Size(v.Duration)
	size += jobStatusMUS.Size(v.FinalStatus)
	size += raw.Float64.Size(v.ErrorRate)
	size += jobConfigMUS.Size(v.Config)
	return
}

func (s jobHistoryEntryMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type promptTemplateMUS struct{}

func (promptTemplateMUS) Marshal(v PromptTemplate, bs []byte) (n int) {
	n = ord.String.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.Description, bs[n:])
	n += ord.String.Marshal(v.Template, bs[n:])
	n += stringSliceMUS.Marshal(v.Variables, bs[n:])
	n += ord.String.Marshal(v.ModelName, bs[n:])
	n += raw.Float64.Marshal(v.Temperature, bs[n:])
	n += varint.Int.Marshal(v.MaxTokens, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS.Marshal(v.LastUsed, bs[n:])
	n += varint.Int64.Marshal(v.UsageCount, bs[n:])
	return
}

func (promptTemplateMUS) Unmarshal(bs []byte) (v PromptTemplate, n int, err error) {
	r := &reader{bs: bs}
	v.Id = read[string](r, ord.String)
	v.Name = read[string](r, ord.String)
	v.Description = read[string](r, ord.String)
	v.Template = read[string](r, ord.String)
	v.Variables = read[[]string](r, stringSliceMUS)
	v.ModelName = read[string](r, ord.String)
	v.Temperature = read[float64](r, raw.Float64)
	v.MaxTokens = read[int](r, varint.Int)
	v.CreatedAt = read[time.Time](r, timeMUS)
	v.LastUsed = read[time.Time](r, timeMUS)
	v.UsageCount = read[int64](r, varint.Int64)
	return v, r.n, r.err
}

func (promptTemplateMUS) Size(v PromptTemplate) (size int) {
	size = ord.String.Size(v.Id)
	size += ord.String.Size(v.Name)
	size += ord.String.Size(v.Description)
	size += ord.String.Size(v.Template)
	size += stringSliceMUS.Size(v.Variables)
	size += ord.String.Size(v.ModelName)
	size += raw.Float64.Size(v.Temperature)
	size += varint.Int.Size(v.MaxTokens)
	size += timeMUS.Size(v.CreatedAt)
	size += timeMUS.Size(v.LastUsed)
	size += varint.Int64.Size(v.UsageCount)
	return
}

func (s promptTemplateMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
