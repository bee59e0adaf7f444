package model

import (
	"errors"
	"strings"
)

// ErrNoRecords is returned when an edge event carries no request record.
var ErrNoRecords = errors.New("edge event contains no records")

// EdgeEvent is the viewer/origin request event delivered by the CDN edge runtime.
type EdgeEvent struct {
	Records []EdgeRecord `json:"Records"`
}

// EdgeRecord is one record of an EdgeEvent.
type EdgeRecord struct {
	CF EdgeCF `json:"cf"`
}

// EdgeCF holds the distribution metadata and the request.
type EdgeCF struct {
	Config  EdgeConfig  `json:"config"`
	Request EdgeRequest `json:"request"`
}

// EdgeConfig carries distribution metadata for the invocation.
type EdgeConfig struct {
	DistributionDomainName string `json:"distributionDomainName"`
	DistributionID         string `json:"distributionId"`
	EventType              string `json:"eventType"`
	RequestID              string `json:"requestId"`
}

// EdgeRequest is the request part of an edge record.
type EdgeRequest struct {
	ClientIP    string                  `json:"clientIp"`
	Method      string                  `json:"method"`
	URI         string                  `json:"uri"`
	Querystring string                  `json:"querystring"`
	Headers     map[string][]EdgeHeader `json:"headers"`
	Origin      EdgeOrigin              `json:"origin"`
	Body        *EdgeBody               `json:"body,omitempty"`
}

// EdgeHeader is a single header value; Key keeps the original casing.
type EdgeHeader struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// EdgeOrigin describes the origin the CDN would have routed to.
type EdgeOrigin struct {
	Custom *EdgeCustomOrigin `json:"custom,omitempty"`
	S3     *EdgeS3Origin     `json:"s3,omitempty"`
}

// EdgeCustomOrigin is a custom (HTTP) origin.
type EdgeCustomOrigin struct {
	DomainName string `json:"domainName"`
	Path       string `json:"path"`
	Port       int    `json:"port"`
	Protocol   string `json:"protocol"`
}

// EdgeS3Origin is a bucket origin.
type EdgeS3Origin struct {
	DomainName string `json:"domainName"`
	Path       string `json:"path"`
}

// EdgeBody is the optional request body. InputTruncated is set by the CDN
// when the body exceeded its size limit.
type EdgeBody struct {
	InputTruncated bool   `json:"inputTruncated"`
	Action         string `json:"action"`
	Encoding       string `json:"encoding"`
	Data           string `json:"data"`
}

// RequestID returns the CDN request id of the first record, if any.
func (e *EdgeEvent) RequestID() string {
	if len(e.Records) == 0 {
		return ""
	}
	return e.Records[0].CF.Config.RequestID
}

// Request converts the first record into an IncomingRequest.
func (e *EdgeEvent) Request() (*IncomingRequest, error) {
	if len(e.Records) == 0 {
		return nil, ErrNoRecords
	}
	er := e.Records[0].CF.Request

	headers := make(map[string][]string, len(er.Headers))
	for name, entries := range er.Headers {
		key := strings.ToLower(name)
		for _, h := range entries {
			headers[key] = append(headers[key], h.Value)
		}
	}

	req := &IncomingRequest{
		Method:       er.Method,
		URI:          er.URI,
		Querystring:  er.Querystring,
		Headers:      headers,
		OriginDomain: er.Origin.domainName(),
	}
	// An include-body distribution sends an empty body object for bodiless requests.
	if er.Body != nil && er.Body.Data != "" {
		req.Body = &Body{Data: er.Body.Data, Encoding: er.Body.Encoding}
	}
	return req, nil
}

func (o EdgeOrigin) domainName() string {
	switch {
	case o.Custom != nil:
		return o.Custom.DomainName
	case o.S3 != nil:
		return o.S3.DomainName
	default:
		return ""
	}
}
