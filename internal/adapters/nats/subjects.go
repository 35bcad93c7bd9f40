package natsadapter

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// StreamName is the JetStream stream holding all orchard events.
	StreamName = "ORCHARD_IMPUTATIONS"

	imputationPrefix    = "orchard.imputation."
	surveyUpdatedPrefix = "orchard.survey.updated."

	// ImputationWildcard matches every imputation event; the WebSocket
	// relay subscribes to it.
	ImputationWildcard    = imputationPrefix + "*"
	surveyUpdatedWildcard = surveyUpdatedPrefix + "*"
)

// ImputationSubject is the subject a run of orchardID is published on.
func ImputationSubject(orchardID int64) string {
	return imputationPrefix + strconv.FormatInt(orchardID, 10)
}

// SurveyUpdatedSubject is the subject announcing a new survey of orchardID.
func SurveyUpdatedSubject(orchardID int64) string {
	return surveyUpdatedPrefix + strconv.FormatInt(orchardID, 10)
}

// orchardFromSubject extracts the orchard ID from the last subject token.
func orchardFromSubject(subject, prefix string) (int64, error) {
	tail, ok := strings.CutPrefix(subject, prefix)
	if !ok {
		return 0, fmt.Errorf("unexpected subject %q", subject)
	}
	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad orchard id in subject %q", subject)
	}
	return id, nil
}
