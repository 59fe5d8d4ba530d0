package protocol

import (
	"github.com/powerloom/redstone-processor/pkgs/numeric"
	"github.com/powerloom/redstone-processor/pkgs/wire"
)

// Recoverer abstracts signer recovery so this package doesn't hard-depend
// on a concrete crypto implementation: pkgs/crypto.RecoverSignerAddress
// satisfies it directly, and pkgs/identity wraps it with an LRU cache.
type Recoverer interface {
	RecoverSignerAddress(signableBytes, signature []byte) (SignerAddress, error)
}

// DecodePayload parses a full RedStone payload per the wire format's
// trailer: marker, package_count, unsigned_metadata_size, metadata, then
// that many data packages. Packages are read tail-first (reverse wire
// order) but returned in original wire order, index 0 being the first
// package a producer would have appended.
func DecodePayload(payload []byte, recoverer Recoverer) ([]DataPackage, []byte, error) {
	r := wire.NewReader(payload)

	markerBytes, err := r.TrimEnd(wire.RedstoneMarkerBytes)
	if err != nil {
		return nil, nil, err
	}
	var marker [wire.RedstoneMarkerBytes]byte
	copy(marker[:], markerBytes)
	if marker != wire.RedstoneMarker {
		return nil, nil, ErrWrongMarker{Got: marker}
	}

	packageCount, err := r.TrimEndUint(wire.DataPackagesCountBytes)
	if err != nil {
		return nil, nil, err
	}

	metadataSize, err := r.TrimEndUint(wire.UnsignedMetadataSizeBytes)
	if err != nil {
		return nil, nil, err
	}

	metadata, err := r.TrimEnd(metadataSize)
	if err != nil {
		return nil, nil, err
	}

	packages := make([]DataPackage, packageCount)
	for i := packageCount - 1; i >= 0; i-- {
		pkg, err := decodePackage(r, recoverer)
		if err != nil {
			if notRecoverable, ok := err.(ErrSignerNotRecoverable); ok {
				notRecoverable.PackageIndex = i
				err = notRecoverable
			}
			return nil, nil, err
		}
		packages[i] = pkg
	}

	if err := r.AssertEmpty(); err != nil {
		return nil, nil, err
	}

	return packages, metadata, nil
}

// decodePackage consumes one data package from the tail of r: signature,
// point_count, value_size, timestamp, then point_count data points each
// sized 32+value_size bytes. The signable region is everything in the
// package except its signature, hashed and recovered via recoverer.
func decodePackage(r *wire.Reader, recoverer Recoverer) (DataPackage, error) {
	signature, err := r.TrimEnd(wire.SignatureBytes)
	if err != nil {
		return DataPackage{}, err
	}
	afterSignature := r.Remaining()

	pointCount, err := r.TrimEndUint(wire.DataPointsCountBytes)
	if err != nil {
		return DataPackage{}, err
	}

	valueSize, err := r.TrimEndUint(wire.DataPointValueSizeBytes)
	if err != nil {
		return DataPackage{}, err
	}
	if valueSize > wire.MaxValueSize {
		return DataPackage{}, ErrInvalidPayloadLength{Expected: valueSize, Available: wire.MaxValueSize}
	}

	timestamp, err := r.TrimEndUint64(wire.TimestampBytes)
	if err != nil {
		return DataPackage{}, err
	}

	pointsLen := pointCount * (wire.DataFeedIDBytes + valueSize)
	signableLen := pointsLen + wire.TimestampBytes + wire.DataPointValueSizeBytes + wire.DataPointsCountBytes
	if signableLen > len(afterSignature) {
		return DataPackage{}, ErrInvalidPayloadLength{Expected: signableLen, Available: len(afterSignature)}
	}
	signable := afterSignature[len(afterSignature)-signableLen:]

	pointsBuf, err := r.TrimEnd(pointsLen)
	if err != nil {
		return DataPackage{}, err
	}

	recordSize := wire.DataFeedIDBytes + valueSize
	points := make([]DataPoint, pointCount)
	for i := 0; i < pointCount; i++ {
		rec := pointsBuf[i*recordSize : (i+1)*recordSize]
		var feedID FeedID
		copy(feedID[:], rec[:wire.DataFeedIDBytes])
		points[i] = DataPoint{
			FeedID: feedID,
			Value:  numeric.Widen(rec[wire.DataFeedIDBytes:]),
		}
	}

	signer, err := recoverer.RecoverSignerAddress(signable, signature)
	if err != nil {
		return DataPackage{}, ErrSignerNotRecoverable{Cause: err}
	}

	return DataPackage{
		Points:    points,
		Timestamp: timestamp,
		Signer:    signer,
	}, nil
}
