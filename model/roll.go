package model

type RollSummary struct {
	Name       string  `json:"name" dynamodbav:"Name"`
	SourceHash string  `json:"source_hash" dynamodbav:"SourceHash"`
	NumTapes   int     `json:"num_tapes" dynamodbav:"NumTapes"`
	Labels     []Label `json:"labels" dynamodbav:"Labels"`
}

type Label struct {
	Index            int    `json:"index" yaml:"index"`
	StartTime        uint64 `json:"start_time" yaml:"start_time"`
	Tempo            uint32 `json:"tempo" yaml:"tempo"`
	Channel          uint8  `json:"channel" yaml:"channel"`
	Instrument       uint8  `json:"instrument" yaml:"instrument"`
	UnitLength       uint64 `json:"unit_length" yaml:"unit_length"`
	StorageReference string `json:"storage_reference,omitempty" yaml:"storage_reference"`
}
