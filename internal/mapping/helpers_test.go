package mapping

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nucleus/itsm-core/internal/core/cdm"
)

func mustPath(s string) cdm.Path { return cdm.MustParsePath(s) }

func strValue(s string) *structpb.Value { return structpb.NewStringValue(s) }
