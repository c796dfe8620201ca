// Package flows reconstructs end-to-end 3GPP signaling procedures from a
// correlated session's message list, scoring them against known procedure
// templates and reporting deviations from the standard flow.
package flows

import (
	"fmt"
	"sort"
	"time"

	"github.com/protei/monitoring/pkg/decoder"
)

// ProcedureTemplate represents a standard 3GPP procedure flow
type ProcedureTemplate struct {
	Name        string              `json:"name"`        // e.g., "4G Attach"
	Description string              `json:"description"` // What this procedure does
	Standard    string              `json:"standard"`     // e.g., "TS 23.401"
	Section     string              `json:"section"`      // e.g., "5.3.2.1"
	Generation  string              `json:"generation"`   // "2G", "3G", "4G", "5G"
	Steps       []*ProcedureStep    `json:"steps"`         // Expected message sequence
	Interfaces  []string            `json:"interfaces"`    // S6a, S11, S1-MME, etc.
	Duration    time.Duration       `json:"duration"`      // Expected duration
	Variants    []*ProcedureVariant `json:"variants"`       // Different paths (success, failure)
}

// ProcedureStep represents one step in a procedure
type ProcedureStep struct {
	Number      int      `json:"number"`      // Step number
	Message     string   `json:"message"`     // Message name (e.g., "AttachRequest")
	Direction   string   `json:"direction"`   // "UE->eNB", "MME->HSS"
	Interface   string   `json:"interface"`   // "S1-MME", "S6a", etc.
	Protocol    string   `json:"protocol"`    // decoder.Protocol value, e.g. "NAS-4G", "S1AP"
	Mandatory   bool     `json:"mandatory"`   // Is this step required?
	Expected    bool     `json:"expected"`    // Expected in normal flow?
	IEs         []string `json:"ies"`         // Expected Information Elements
	Description string   `json:"description"` // What happens in this step
}

// ProcedureVariant represents different execution paths
type ProcedureVariant struct {
	Name        string           `json:"name"`        // "Success", "IMSI Unknown", "Roaming Rejected"
	Probability float64          `json:"probability"` // Expected occurrence %
	Steps       []*ProcedureStep `json:"steps"`        // Steps for this variant
	Outcome     string           `json:"outcome"`      // "success", "failure"
	Cause       string           `json:"cause"`        // Cause if failure
}

// CapturedFlow represents actual captured traffic flow, reconstructed
// against the best-matching ProcedureTemplate.
type CapturedFlow struct {
	ID           string             `json:"id"`
	Procedure    string             `json:"procedure"` // Detected procedure name
	IMSI         string             `json:"imsi"`
	MSISDN       string             `json:"msisdn"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	Duration     time.Duration      `json:"duration"`
	Messages     []*decoder.Message `json:"messages"`     // Actual messages, timestamp order
	Steps        []*CapturedStep    `json:"steps"`         // Mapped to template steps
	Result       string             `json:"result"`        // "success", "failure", "partial"
	Deviations   []*FlowDeviation   `json:"deviations"`     // Deviations from standard
	Completeness float64            `json:"completeness"`   // matched_mandatory / total_mandatory, 0..1
}

// CapturedStep maps a real message to a template step
type CapturedStep struct {
	TemplateStep *ProcedureStep   `json:"template_step"`
	ActualMsg    *decoder.Message `json:"actual_msg"`
	MsgIndex     int              `json:"-"`       // index into the original message slice, -1 if missing
	Matched      bool             `json:"matched"` // Does it match template?
	Latency      time.Duration    `json:"latency"` // Time since the previous matched step
	Missing      bool             `json:"missing"` // Expected but not found
}

// FlowDeviation represents a deviation from standard flow
type FlowDeviation struct {
	Type        string `json:"type"`        // "missing_step", "out_of_order", "timeout", "unexpected_message"
	Severity    string `json:"severity"`    // "critical", "major", "minor"
	Step        int    `json:"step"`        // Step number where deviation occurred
	Expected    string `json:"expected"`    // What was expected
	Actual      string `json:"actual"`      // What was seen
	Impact      string `json:"impact"`      // Impact description
	Standard    string `json:"standard"`    // 3GPP reference
	Explanation string `json:"explanation"` // Human-readable explanation
}

// FlowReconstructor reconstructs signaling flows from captured messages
type FlowReconstructor struct {
	templates map[string]*ProcedureTemplate
}

// NewFlowReconstructor creates a new flow reconstructor
func NewFlowReconstructor() *FlowReconstructor {
	fr := &FlowReconstructor{
		templates: make(map[string]*ProcedureTemplate),
	}
	fr.loadStandardProcedures()
	return fr
}

// Load standard 3GPP procedures. Message and Protocol fields are spelled to
// match exactly what the corresponding decoder sets on decoder.Message
// (MessageName / Protocol), since detection and step matching key off that
// pair verbatim.
func (fr *FlowReconstructor) loadStandardProcedures() {
	// 4G Attach Procedure
	fr.templates["4G_Attach"] = &ProcedureTemplate{
		Name:        "4G Attach Procedure",
		Description: "Initial attachment of UE to LTE/EPS network",
		Standard:    "TS 23.401",
		Section:     "5.3.2.1",
		Generation:  "4G",
		Duration:    2 * time.Second,
		Interfaces:  []string{"S1-MME", "S6a", "S11", "S5/S8"},
		Steps: []*ProcedureStep{
			{
				Number:      1,
				Message:     "AttachRequest",
				Direction:   "UE->MME",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolNAS4G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "UE Network Capability", "PDN Type"},
				Description: "UE initiates attach with IMSI and capabilities",
			},
			{
				Number:      2,
				Message:     "AIR",
				Direction:   "MME->HSS",
				Interface:   "S6a",
				Protocol:    string(decoder.ProtocolDiameter),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "Visited PLMN ID", "Number of Requested Vectors"},
				Description: "MME requests authentication vectors from HSS",
			},
			{
				Number:      3,
				Message:     "AIA",
				Direction:   "HSS->MME",
				Interface:   "S6a",
				Protocol:    string(decoder.ProtocolDiameter),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Authentication Vectors (RAND, AUTN, XRES, KASME)"},
				Description: "HSS provides authentication vectors",
			},
			{
				Number:      4,
				Message:     "AuthenticationRequest",
				Direction:   "MME->UE",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolNAS4G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"RAND", "AUTN"},
				Description: "MME challenges UE with authentication parameters",
			},
			{
				Number:      5,
				Message:     "AuthenticationResponse",
				Direction:   "UE->MME",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolNAS4G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"RES"},
				Description: "UE responds with authentication result",
			},
			{
				Number:      6,
				Message:     "ULR",
				Direction:   "MME->HSS",
				Interface:   "S6a",
				Protocol:    string(decoder.ProtocolDiameter),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "Visited PLMN ID", "RAT Type", "ULR Flags"},
				Description: "MME updates subscriber location in HSS",
			},
			{
				Number:      7,
				Message:     "ULA",
				Direction:   "HSS->MME",
				Interface:   "S6a",
				Protocol:    string(decoder.ProtocolDiameter),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Subscription Data (APN, QoS, etc.)"},
				Description: "HSS provides subscription data",
			},
			{
				Number:      8,
				Message:     "CreateSessionRequest",
				Direction:   "MME->SGW->PGW",
				Interface:   "S11/S5",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "APN", "RAT Type", "Bearer Contexts"},
				Description: "MME requests session creation with default bearer",
			},
			{
				Number:      9,
				Message:     "CreateSessionResponse",
				Direction:   "PGW->SGW->MME",
				Interface:   "S5/S11",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Cause", "PDN Address", "Bearer Contexts"},
				Description: "PGW confirms session creation and assigns IP",
			},
			{
				Number:      10,
				Message:     "InitialContextSetup Request",
				Direction:   "MME->eNB",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolS1AP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"E-RAB to be Setup", "Security Context", "UE Aggregate Max Bitrate"},
				Description: "MME requests eNB to setup radio resources",
			},
			{
				Number:      11,
				Message:     "InitialContextSetup Response",
				Direction:   "eNB->MME",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolS1AP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"E-RAB Setup List"},
				Description: "eNB confirms radio bearer establishment",
			},
			{
				Number:      12,
				Message:     "AttachAccept",
				Direction:   "MME->UE",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolNAS4G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"GUTI", "TAI List"},
				Description: "MME accepts attach and provides GUTI",
			},
			{
				Number:      13,
				Message:     "AttachComplete",
				Direction:   "UE->MME",
				Interface:   "S1-MME",
				Protocol:    string(decoder.ProtocolNAS4G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"ESM Message Container"},
				Description: "UE confirms attach completion",
			},
		},
	}

	// 5G Registration Procedure
	fr.templates["5G_Registration"] = &ProcedureTemplate{
		Name:        "5G Registration Procedure",
		Description: "Initial registration of UE to 5G network",
		Standard:    "TS 23.502",
		Section:     "4.2.2.2.2",
		Generation:  "5G",
		Duration:    2 * time.Second,
		Interfaces:  []string{"N1", "N2", "Namf", "Nudm"},
		Steps: []*ProcedureStep{
			{
				Number:      1,
				Message:     "RegistrationRequest",
				Direction:   "UE->AMF",
				Interface:   "N1",
				Protocol:    string(decoder.ProtocolNAS5G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"SUCI/SUPI", "Registration Type", "5G Capabilities"},
				Description: "UE initiates registration with identity",
			},
			{
				Number:      2,
				Message:     "Nudm_UECM_Registration",
				Direction:   "AMF->UDM",
				Interface:   "Nudm",
				Protocol:    string(decoder.ProtocolHTTP2),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"SUPI", "AMF Address"},
				Description: "AMF registers with UDM",
			},
			{
				Number:      3,
				Message:     "Nudm_SDM_Get",
				Direction:   "AMF->UDM",
				Interface:   "Nudm",
				Protocol:    string(decoder.ProtocolHTTP2),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"SUPI", "Data Set"},
				Description: "AMF retrieves subscription data",
			},
			{
				Number:      4,
				Message:     "RegistrationAccept",
				Direction:   "AMF->UE",
				Interface:   "N1",
				Protocol:    string(decoder.ProtocolNAS5G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"5G-GUTI", "TAI List"},
				Description: "AMF accepts registration",
			},
		},
	}

	// GTP Create Session Procedure. The two request steps and the two
	// response steps share (protocol, messageName) pairs by design — they
	// are the same message at different hops — and are distinguished only
	// by Direction/Interface, which detectProcedure/matchSteps do not key
	// on. matchSteps's "earliest unused message" rule still assigns them
	// correctly in order: the first CreateSessionRequest satisfies step 1,
	// the second satisfies step 2, and likewise for the two response steps.
	fr.templates["GTP_Create_Session"] = &ProcedureTemplate{
		Name:        "GTP Create Session Procedure",
		Description: "Establishment of GTP tunnel for data session",
		Standard:    "TS 29.274",
		Section:     "7.2.1",
		Generation:  "4G",
		Duration:    500 * time.Millisecond,
		Interfaces:  []string{"S11", "S5/S8"},
		Steps: []*ProcedureStep{
			{
				Number:      1,
				Message:     "CreateSessionRequest",
				Direction:   "MME/SGSN->SGW",
				Interface:   "S11/S4",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "APN", "Bearer Contexts", "PDN Type"},
				Description: "Request to create GTP session",
			},
			{
				Number:      2,
				Message:     "CreateSessionRequest",
				Direction:   "SGW->PGW",
				Interface:   "S5/S8",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "APN", "Bearer Contexts"},
				Description: "SGW forwards request to PGW",
			},
			{
				Number:      3,
				Message:     "CreateSessionResponse",
				Direction:   "PGW->SGW",
				Interface:   "S5/S8",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Cause", "PDN Address", "Bearer Contexts"},
				Description: "PGW responds with session details",
			},
			{
				Number:      4,
				Message:     "CreateSessionResponse",
				Direction:   "SGW->MME/SGSN",
				Interface:   "S11/S4",
				Protocol:    string(decoder.ProtocolGTPv2C),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Cause", "Bearer Contexts"},
				Description: "SGW forwards response to MME",
			},
		},
	}

	// MAP Update Location. Both steps share messageName "UpdateLocation"
	// (the MAP decoder names the operation, not the TCAP component type);
	// steps match on protocol and name only, so the earlier UpdateLocation
	// message fills the invoke step and the later one the return-result.
	fr.templates["MAP_Update_Location"] = &ProcedureTemplate{
		Name:        "MAP Update Location",
		Description: "Location update in 2G/3G network",
		Standard:    "TS 29.002",
		Section:     "7.3",
		Generation:  "2G/3G",
		Duration:    1 * time.Second,
		Interfaces:  []string{"D", "C"},
		Steps: []*ProcedureStep{
			{
				Number:      1,
				Message:     "UpdateLocation",
				Direction:   "VLR->HLR",
				Interface:   "D",
				Protocol:    string(decoder.ProtocolMAP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"IMSI", "MSC Number", "VLR Number"},
				Description: "VLR sends location update to HLR",
			},
			{
				Number:      2,
				Message:     "UpdateLocation",
				Direction:   "HLR->VLR",
				Interface:   "D",
				Protocol:    string(decoder.ProtocolMAP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"HLR Number", "Subscription Data"},
				Description: "HLR confirms and sends subscriber data",
			},
		},
	}

	// PDU Session Establishment (5G)
	fr.templates["5G_PDU_Session"] = &ProcedureTemplate{
		Name:        "5G PDU Session Establishment",
		Description: "PDU session creation in 5G network",
		Standard:    "TS 23.502",
		Section:     "4.3.2.2.1",
		Generation:  "5G",
		Duration:    1 * time.Second,
		Interfaces:  []string{"N1", "N2", "N4", "N11"},
		Steps: []*ProcedureStep{
			{
				Number:      1,
				Message:     "PDUSessionEstablishmentRequest",
				Direction:   "UE->AMF->SMF",
				Interface:   "N1",
				Protocol:    string(decoder.ProtocolNAS5G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"PDU Session ID", "DNN", "S-NSSAI"},
				Description: "UE requests PDU session establishment",
			},
			{
				Number:      2,
				Message:     "Nsmf_PDUSession_CreateSMContext",
				Direction:   "AMF->SMF",
				Interface:   "N11",
				Protocol:    string(decoder.ProtocolHTTP2),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"SUPI", "DNN", "S-NSSAI"},
				Description: "AMF requests SMF to create SM context",
			},
			{
				Number:      3,
				Message:     "SessionEstablishmentRequest",
				Direction:   "SMF->UPF",
				Interface:   "N4",
				Protocol:    string(decoder.ProtocolPFCP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Node ID", "PDR", "FAR", "QER"},
				Description: "SMF creates forwarding rules in UPF",
			},
			{
				Number:      4,
				Message:     "SessionEstablishmentResponse",
				Direction:   "UPF->SMF",
				Interface:   "N4",
				Protocol:    string(decoder.ProtocolPFCP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"Cause", "F-SEID"},
				Description: "UPF confirms session establishment",
			},
			{
				Number:      5,
				Message:     "PDUSessionResourceSetup Request",
				Direction:   "AMF->gNB",
				Interface:   "N2",
				Protocol:    string(decoder.ProtocolNGAP),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"PDU Session Resource Setup List", "QoS Flows"},
				Description: "AMF requests gNB to setup radio resources",
			},
			{
				Number:      6,
				Message:     "PDUSessionEstablishmentAccept",
				Direction:   "SMF->AMF->UE",
				Interface:   "N1",
				Protocol:    string(decoder.ProtocolNAS5G),
				Mandatory:   true,
				Expected:    true,
				IEs:         []string{"PDU Session ID", "QoS Rules"},
				Description: "SMF accepts PDU session",
			},
		},
	}
}

// ReconstructFlow matches a session's captured messages to the
// best-fitting procedure template and reports completeness and deviations.
// Messages are processed in timestamp order regardless of the order
// passed in.
func (fr *FlowReconstructor) ReconstructFlow(messages []*decoder.Message) *CapturedFlow {
	if len(messages) == 0 {
		return nil
	}

	ordered := make([]*decoder.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })

	templateName, template := fr.detectProcedure(ordered)

	if template == nil {
		return &CapturedFlow{
			ID:        fmt.Sprintf("FLOW_%d", time.Now().UnixNano()),
			Procedure: "Unknown",
			Messages:  ordered,
			StartTime: ordered[0].Timestamp,
			EndTime:   ordered[len(ordered)-1].Timestamp,
			Duration:  ordered[len(ordered)-1].Timestamp.Sub(ordered[0].Timestamp),
			Result:    "unknown",
		}
	}

	flow := &CapturedFlow{
		ID:        fmt.Sprintf("FLOW_%s_%d", templateName, time.Now().UnixNano()),
		Procedure: template.Name,
		Messages:  ordered,
	}

	for _, msg := range ordered {
		if flow.IMSI == "" && msg.IMSI != "" {
			flow.IMSI = msg.IMSI
		}
		if flow.MSISDN == "" && msg.MSISDN != "" {
			flow.MSISDN = msg.MSISDN
		}
	}

	flow.StartTime = ordered[0].Timestamp
	flow.EndTime = ordered[len(ordered)-1].Timestamp
	flow.Duration = flow.EndTime.Sub(flow.StartTime)

	flow.Steps = fr.matchSteps(ordered, template)
	flow.Deviations = fr.detectDeviations(flow.Steps, ordered, template)
	flow.Completeness = completeness(flow.Steps, template)
	flow.Result = classifyResult(flow.Completeness, flow.Deviations)

	return flow
}

// detectProcedure scores every template by counting how many of its
// mandatory steps have a matching (protocol, messageName) pair somewhere in
// messages. The highest score wins; a tie is broken by the template with
// more total mandatory steps (the more specific procedure).
func (fr *FlowReconstructor) detectProcedure(messages []*decoder.Message) (string, *ProcedureTemplate) {
	present := make(map[string]bool, len(messages))
	for _, msg := range messages {
		present[string(msg.Protocol)+"|"+msg.MessageName] = true
	}

	var bestName string
	var best *ProcedureTemplate
	bestScore := 0
	bestMandatory := 0

	for name, tmpl := range fr.templates {
		score := 0
		mandatoryTotal := 0
		for _, step := range tmpl.Steps {
			if !step.Mandatory {
				continue
			}
			mandatoryTotal++
			if present[step.Protocol+"|"+step.Message] {
				score++
			}
		}
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && mandatoryTotal > bestMandatory) {
			bestScore = score
			bestMandatory = mandatoryTotal
			bestName = name
			best = tmpl
		}
	}

	return bestName, best
}

// matchSteps assigns, for each template step in order, the earliest
// not-yet-used message whose (protocol, messageName) matches. Latency is
// measured from the previously matched step's timestamp.
func (fr *FlowReconstructor) matchSteps(messages []*decoder.Message, template *ProcedureTemplate) []*CapturedStep {
	steps := make([]*CapturedStep, 0, len(template.Steps))
	used := make([]bool, len(messages))
	var prevTime time.Time

	for _, templateStep := range template.Steps {
		matchedIdx := -1
		for i, msg := range messages {
			if used[i] {
				continue
			}
			if string(msg.Protocol) == templateStep.Protocol && msg.MessageName == templateStep.Message {
				matchedIdx = i
				break
			}
		}

		if matchedIdx == -1 {
			steps = append(steps, &CapturedStep{
				TemplateStep: templateStep,
				MsgIndex:     -1,
				Matched:      false,
				Missing:      templateStep.Mandatory,
			})
			continue
		}

		used[matchedIdx] = true
		msg := messages[matchedIdx]
		var latency time.Duration
		if !prevTime.IsZero() {
			latency = msg.Timestamp.Sub(prevTime)
		}
		prevTime = msg.Timestamp

		steps = append(steps, &CapturedStep{
			TemplateStep: templateStep,
			ActualMsg:    msg,
			MsgIndex:     matchedIdx,
			Matched:      true,
			Latency:      latency,
			Missing:      false,
		})
	}

	return steps
}

// detectDeviations scores conformance: missing mandatory steps are
// critical, an out-of-order match (a step's message appears earlier in the
// capture than the previous step's) is major, a >5s gap between consecutive
// matched steps is major, and any captured message never consumed by a step
// is reported as an unexpected/minor deviation.
func (fr *FlowReconstructor) detectDeviations(steps []*CapturedStep, messages []*decoder.Message, template *ProcedureTemplate) []*FlowDeviation {
	var deviations []*FlowDeviation
	standardRef := template.Standard + " Section " + template.Section

	lastIdx := -1
	for i, step := range steps {
		if step.Missing {
			deviations = append(deviations, &FlowDeviation{
				Type:        "missing_step",
				Severity:    "critical",
				Step:        step.TemplateStep.Number,
				Expected:    step.TemplateStep.Message,
				Actual:      "Not received",
				Impact:      "Procedure cannot complete successfully",
				Standard:    standardRef,
				Explanation: fmt.Sprintf("Mandatory step %d (%s) is missing. This violates 3GPP %s.", step.TemplateStep.Number, step.TemplateStep.Message, template.Standard),
			})
			continue
		}
		if !step.Matched {
			continue
		}

		if step.MsgIndex < lastIdx {
			deviations = append(deviations, &FlowDeviation{
				Type:        "out_of_order",
				Severity:    "major",
				Step:        step.TemplateStep.Number,
				Expected:    fmt.Sprintf("after step %d", i),
				Actual:      "received before the preceding step's message",
				Impact:      "Procedure steps observed out of the standard sequence",
				Standard:    standardRef,
				Explanation: fmt.Sprintf("Step %d (%s) matched a message captured earlier than the message for the previous step.", step.TemplateStep.Number, step.TemplateStep.Message),
			})
		}
		lastIdx = step.MsgIndex

		if step.Latency > 5*time.Second {
			deviations = append(deviations, &FlowDeviation{
				Type:        "timeout",
				Severity:    "major",
				Step:        step.TemplateStep.Number,
				Expected:    "< 5s",
				Actual:      fmt.Sprintf("%.2fs", step.Latency.Seconds()),
				Impact:      "Slow procedure execution may cause UE timeout",
				Standard:    standardRef,
				Explanation: fmt.Sprintf("Step %d took %.2fs which exceeds the 5s timeout threshold.", step.TemplateStep.Number, step.Latency.Seconds()),
			})
		}
	}

	used := make(map[int]bool, len(steps))
	for _, step := range steps {
		if step.Matched {
			used[step.MsgIndex] = true
		}
	}
	for i, msg := range messages {
		if used[i] {
			continue
		}
		deviations = append(deviations, &FlowDeviation{
			Type:        "unexpected_message",
			Severity:    "minor",
			Step:        0,
			Expected:    "no message at this point",
			Actual:      fmt.Sprintf("%s %s", msg.Protocol, msg.MessageName),
			Impact:      "Message does not belong to the detected procedure",
			Standard:    standardRef,
			Explanation: fmt.Sprintf("%s %s was captured but does not match any step of %s.", msg.Protocol, msg.MessageName, template.Name),
		})
	}

	return deviations
}

// completeness is matched_mandatory / total_mandatory, on a 0..1 scale.
func completeness(steps []*CapturedStep, template *ProcedureTemplate) float64 {
	var totalMandatory, matchedMandatory int
	for _, step := range steps {
		if !step.TemplateStep.Mandatory {
			continue
		}
		totalMandatory++
		if step.Matched {
			matchedMandatory++
		}
	}
	if totalMandatory == 0 {
		return 0
	}
	return float64(matchedMandatory) / float64(totalMandatory)
}

// classifyResult derives the overall result: success requires completeness
// >= 0.9 and no critical deviations; completeness < 0.5 is a failure;
// everything else is partial.
func classifyResult(completeness float64, deviations []*FlowDeviation) string {
	hasCritical := false
	for _, d := range deviations {
		if d.Severity == "critical" {
			hasCritical = true
			break
		}
	}

	switch {
	case completeness >= 0.9 && !hasCritical:
		return "success"
	case completeness < 0.5:
		return "failure"
	default:
		return "partial"
	}
}

// GetTemplate returns a procedure template by name
func (fr *FlowReconstructor) GetTemplate(name string) *ProcedureTemplate {
	return fr.templates[name]
}

// ListTemplates returns all available templates
func (fr *FlowReconstructor) ListTemplates() []*ProcedureTemplate {
	templates := make([]*ProcedureTemplate, 0, len(fr.templates))
	for _, template := range fr.templates {
		templates = append(templates, template)
	}
	return templates
}
