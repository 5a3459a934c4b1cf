package server

import (
	"io"
	"net/http"

	"github.com/llxisdsh/synctable/internal/config"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
)

func (service *Service) compressed() bool {
	return service.Config.SnapshotCompression == config.CompressionLZ4
}

// EndpointGetSnapshot handles the 'GET /v1/snapshot' endpoint
func (service *Service) EndpointGetSnapshot(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "application/octet-stream")
	if service.compressed() {
		writer.Header().Set("Content-Encoding", "lz4")
	}
	writer.WriteHeader(http.StatusOK)

	// The status line is out, so failures can only be logged.
	var out io.Writer = writer
	var zw *lz4.Writer
	if service.compressed() {
		zw = lz4.NewWriter(writer)
		out = zw
	}
	n, err := service.Table.WriteTo(out)
	if err == nil && zw != nil {
		err = zw.Close()
	}
	if err != nil {
		log.Error().Err(err).Int64("bytes", n).Msg("could not stream the table snapshot")
		return
	}
	log.Debug().Int64("bytes", n).Msg("streamed a table snapshot")
}

func (service *Service) maxSnapshotBytes() int64 {
	if service.Config.MaxSnapshotBytes > 0 {
		return service.Config.MaxSnapshotBytes
	}
	return config.DefaultMaxSnapshotBytes
}

// EndpointPutSnapshot handles the 'PUT /v1/snapshot' endpoint. The table is
// replaced as a whole, or not at all. Both the uploaded and the decompressed
// stream are limited to MaxSnapshotBytes.
func (service *Service) EndpointPutSnapshot(writer http.ResponseWriter, request *http.Request) {
	limit := service.maxSnapshotBytes()
	body := http.MaxBytesReader(writer, request.Body, limit)
	var in io.Reader = body
	if service.compressed() {
		in = http.MaxBytesReader(writer, io.NopCloser(lz4.NewReader(body)), limit)
	}
	if n, err := service.Table.ReadFrom(in); err != nil {
		log.Debug().Err(err).Int64("bytes", n).Msg("rejected a snapshot")
		service.writer.WriteTableError(writer, err)
		return
	}
	service.writer.WriteJSON(writer, service.Table.Stats())
}
